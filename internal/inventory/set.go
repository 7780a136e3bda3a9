package inventory

import (
	"cmp"
	"slices"
)

// Set: 有序元素的最小集合；对外导出时总是升序。
type Set[T cmp.Ordered] map[T]struct{}

// SetOf 以给定元素构造集合。
func SetOf[T cmp.Ordered](vs ...T) Set[T] {
	s := make(Set[T], len(vs))
	for _, v := range vs {
		s[v] = struct{}{}
	}
	return s
}

func (s Set[T]) Add(v T) { s[v] = struct{}{} }

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Union 将 o 并入 s（s 单调不减）。
func (s Set[T]) Union(o Set[T]) {
	for v := range o {
		s[v] = struct{}{}
	}
}

// Sorted 返回升序切片；空集合返回非 nil 空切片，保证 JSON 输出为 []。
func (s Set[T]) Sorted() []T {
	out := make([]T, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (s Set[T]) Equal(o Set[T]) bool {
	if len(s) != len(o) {
		return false
	}
	for v := range s {
		if _, ok := o[v]; !ok {
			return false
		}
	}
	return true
}
