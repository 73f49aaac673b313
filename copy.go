package sharedcell

import (
	stdreflect "reflect"
	"unsafe"

	"golang.design/x/reflect"
)

// Cloner is implemented by values that know how to produce an independent copy
// of themselves. A Cell uses Clone in preference to its default deep copy.
type Cloner[T any] interface {
	Clone() T
}

// copyOf returns a deep copy of value that compares equal to it.
//
// reflect.DeepCopy allocates in place of nil pointers, slices and maps and
// panics on nil interfaces, so it only sees values with no reachable nil.
func copyOf[T any](value T) T {
	if cloner, ok := any(value).(Cloner[T]); ok {
		return cloner.Clone()
	}
	src := stdreflect.ValueOf(&value).Elem()
	if !containsNil(src, map[pointerKey]bool{}) {
		return reflect.DeepCopy(value)
	}
	var out T
	c := copier{seen: map[pointerKey]stdreflect.Value{}}
	c.into(stdreflect.ValueOf(&out).Elem(), src)
	return out
}

type pointerKey struct {
	addr uintptr
	typ  stdreflect.Type
}

func containsNil(v stdreflect.Value, seen map[pointerKey]bool) bool {
	switch v.Kind() {
	case stdreflect.Pointer:
		if v.IsNil() {
			return true
		}
		key := pointerKey{v.Pointer(), v.Type()}
		if seen[key] {
			return false
		}
		seen[key] = true
		return containsNil(v.Elem(), seen)
	case stdreflect.Interface:
		return v.IsNil() || containsNil(v.Elem(), seen)
	case stdreflect.Map:
		if v.IsNil() {
			return true
		}
		iter := v.MapRange()
		for iter.Next() {
			if containsNil(iter.Key(), seen) || containsNil(iter.Value(), seen) {
				return true
			}
		}
	case stdreflect.Slice:
		if v.IsNil() {
			return true
		}
		for i := range v.Len() {
			if containsNil(v.Index(i), seen) {
				return true
			}
		}
	case stdreflect.Array:
		for i := range v.Len() {
			if containsNil(v.Index(i), seen) {
				return true
			}
		}
	case stdreflect.Struct:
		for i := range v.NumField() {
			if containsNil(v.Field(i), seen) {
				return true
			}
		}
	case stdreflect.Chan, stdreflect.Func, stdreflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}

// copier deep copies values that hold nils, keeping every nil as nil. Pointer
// cycles and shared pointers are preserved through seen.
type copier struct {
	seen map[pointerKey]stdreflect.Value
}

func (c *copier) copy(src stdreflect.Value) stdreflect.Value {
	dst := stdreflect.New(src.Type()).Elem()
	c.into(dst, src)
	return dst
}

// into copies src into dst. dst must be settable.
func (c *copier) into(dst, src stdreflect.Value) {
	switch src.Kind() {
	case stdreflect.Pointer:
		if src.IsNil() {
			return
		}
		key := pointerKey{src.Pointer(), src.Type()}
		if p, ok := c.seen[key]; ok {
			dst.Set(p)
			return
		}
		p := stdreflect.New(src.Type().Elem())
		c.seen[key] = p
		c.into(p.Elem(), src.Elem())
		dst.Set(p)
	case stdreflect.Interface:
		if src.IsNil() {
			return
		}
		dst.Set(c.copy(src.Elem()))
	case stdreflect.Slice:
		if src.IsNil() {
			return
		}
		s := stdreflect.MakeSlice(src.Type(), src.Len(), src.Cap())
		for i := range src.Len() {
			c.into(s.Index(i), src.Index(i))
		}
		dst.Set(s)
	case stdreflect.Map:
		if src.IsNil() {
			return
		}
		m := stdreflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			m.SetMapIndex(c.copy(iter.Key()), c.copy(iter.Value()))
		}
		dst.Set(m)
	case stdreflect.Array:
		for i := range src.Len() {
			c.into(dst.Index(i), src.Index(i))
		}
	case stdreflect.Struct:
		if !src.CanAddr() {
			addressable := stdreflect.New(src.Type()).Elem()
			addressable.Set(src)
			src = addressable
		}
		for i := range src.NumField() {
			c.into(exported(dst.Field(i)), exported(src.Field(i)))
		}
	default:
		dst.Set(src)
	}
}

// exported makes an addressable field readable and writable even when it is
// unexported.
func exported(v stdreflect.Value) stdreflect.Value {
	if v.CanSet() {
		return v
	}
	return stdreflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}
