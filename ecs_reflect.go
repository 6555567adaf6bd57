package gekko

import (
	"reflect"
)

// Archetype columns are []T stored as any, so queries can type-assert them
// without reflection. Writes from the untyped entity API go through here.

func newColumn(elem reflect.Type) any {
	return reflect.MakeSlice(reflect.SliceOf(elem), 0, 1).Interface()
}

func columnLen(column any) int {
	return reflect.ValueOf(column).Len()
}

func columnAt(column any, r row) reflect.Value {
	return reflect.ValueOf(column).Index(int(r))
}

func columnStore(column any, r row, value reflect.Value) {
	columnAt(column, r).Set(value)
}

// columnCopy moves one component between archetypes of the same type.
func columnCopy(dst any, dstRow row, src any, srcRow row) {
	columnStore(dst, dstRow, columnAt(src, srcRow))
}

// columnClear zeroes a row before it is recycled, releasing anything the
// component points at.
func columnClear(column any, r row) {
	v := columnAt(column, r)
	v.SetZero()
}

// columnGrow appends a zero row and returns the grown column.
func columnGrow(column any) any {
	v := reflect.ValueOf(column)
	return reflect.Append(v, reflect.Zero(v.Type().Elem())).Interface()
}
