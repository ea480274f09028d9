package lazy

import "reflect"

var cellType = reflect.TypeOf((*Cell)(nil)).Elem()

// ResolveAll loads every lazy cell reachable from obj through struct fields,
// pointers, slices and maps. obj should be a pointer so cells are addressable.
func ResolveAll(obj any) error {
	return resolve(reflect.ValueOf(obj), make(map[uintptr]bool))
}

func resolve(v reflect.Value, seen map[uintptr]bool) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		if c, ok := v.Interface().(Cell); ok {
			if err := c.Load(); err != nil {
				return err
			}
		}
		return resolve(v.Elem(), seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return resolve(v.Elem(), seen)
	case reflect.Struct:
		if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(cellType) {
			c := v.Addr().Interface().(Cell)
			if err := c.Load(); err != nil {
				return err
			}
			return resolveLoaded(v, seen)
		}
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := resolve(v.Field(i), seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := resolve(v.Index(i), seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := resolve(iter.Value(), seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveLoaded descends into the value held by a loaded cell.
func resolveLoaded(cell reflect.Value, seen map[uintptr]bool) error {
	get := cell.MethodByName("Get")
	if !get.IsValid() {
		return nil
	}
	out := get.Call(nil)
	if err, _ := out[1].Interface().(error); err != nil {
		return err
	}
	return resolve(out[0], seen)
}
