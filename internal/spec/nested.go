package spec

// EnumSpec requires values drawn from an ordered set of allowed strings.
type EnumSpec struct {
	values []string
	desc   string
}

// Enumerated builds a specification allowing only the given values.
func Enumerated(desc string, values ...string) *EnumSpec {
	return &EnumSpec{values: append([]string(nil), values...), desc: desc}
}

func (s *EnumSpec) Describe() string { return s.desc }

func (s *EnumSpec) Clone() Spec {
	clone := *s
	clone.values = append([]string(nil), s.values...)
	return &clone
}

// Values returns the allowed values in order.
func (s *EnumSpec) Values() []string {
	return append([]string(nil), s.values...)
}

func (s *EnumSpec) Parse(value any) (any, error) {
	return s.Validate(value)
}

func (s *EnumSpec) Validate(value any) (any, error) {
	v, ok := value.(string)
	if !ok {
		return nil, violation("value %v is not a member of the enumeration", value)
	}
	for _, allowed := range s.values {
		if v == allowed {
			return v, nil
		}
	}
	return nil, violation("value %q is not a member of the enumeration", v)
}

func (s *EnumSpec) Coerce(value any) (any, error) {
	return s.Parse(value)
}

// NestedSpec describes another nested set of entries.
type NestedSpec struct {
	fields map[string]Spec
	desc   string
}

// Nested builds a specification for a nested group of entries.
func Nested(desc string, fields map[string]Spec) *NestedSpec {
	return &NestedSpec{fields: fields, desc: desc}
}

func (s *NestedSpec) Describe() string { return s.desc }

func (s *NestedSpec) Clone() Spec {
	fields := make(map[string]Spec, len(s.fields))
	for name, sub := range s.fields {
		fields[name] = sub.Clone()
	}
	return &NestedSpec{fields: fields, desc: s.desc}
}

func (s *NestedSpec) Nested() map[string]Spec { return s.fields }

func (s *NestedSpec) Parse(value any) (any, error) {
	return s.each(value, func(sub Spec, v any) (any, error) { return sub.Parse(v) })
}

func (s *NestedSpec) Validate(value any) (any, error) {
	return s.each(value, func(sub Spec, v any) (any, error) { return sub.Validate(v) })
}

func (s *NestedSpec) Coerce(value any) (any, error) {
	return s.each(value, func(sub Spec, v any) (any, error) { return sub.Coerce(v) })
}

func (s *NestedSpec) each(value any, apply func(Spec, any) (any, error)) (any, error) {
	dict, ok := value.(map[string]any)
	if !ok {
		return nil, violation("value %v is not a nested mapping", value)
	}
	result := make(map[string]any, len(dict))
	for name, v := range dict {
		sub, ok := s.fields[name]
		if !ok {
			return nil, violation("name %q is not specified", name)
		}
		parsed, err := apply(sub, v)
		if err != nil {
			return nil, err
		}
		result[name] = parsed
	}
	return result, nil
}

// ComputedSpec describes an entry computed on the fly from other values.
type ComputedSpec struct {
	fn    func(owner any) (any, error)
	owner any
	desc  string
}

// Computed builds a get-only specification whose value is produced by fn.
// The owner passed to fn is the component the spec is bound to.
func Computed(desc string, fn func(owner any) (any, error)) *ComputedSpec {
	return &ComputedSpec{fn: fn, desc: desc}
}

func (s *ComputedSpec) Describe() string { return s.desc }

func (s *ComputedSpec) Clone() Spec {
	return &ComputedSpec{fn: s.fn, desc: s.desc}
}

func (s *ComputedSpec) Bind(owner any) { s.owner = owner }

func (s *ComputedSpec) Get() (any, error) {
	return s.fn(s.owner)
}

func (s *ComputedSpec) Parse(any) (any, error) {
	return nil, violation("the value of a computed specification cannot be set explicitly")
}

func (s *ComputedSpec) Validate(any) (any, error) {
	return nil, violation("the value of a computed specification cannot be set manually")
}

func (s *ComputedSpec) Coerce(any) (any, error) {
	return nil, violation("the value of a computed specification cannot be set manually")
}
