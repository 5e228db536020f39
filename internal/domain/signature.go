package domain

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// InputItemConfig describes one named input an operation consumes: which
// bucket it comes from (globals, args, kwargs), its expected SVKind, and
// whether the operation can run without it.
type InputItemConfig struct {
	Name     string
	Bucket   InputBucket
	Kind     SVKind
	Required bool
	// StructTag, when non-empty, is a go-playground/validator tag that Check
	// evaluates against the bound value's Go projection (SV.ToJSON), for
	// cells declared programmatically rather than parsed from markdown.
	StructTag string
}

// InputBucket names which of a signature's three namespaces an input lives in.
type InputBucket string

const (
	BucketGlobal InputBucket = "globals"
	BucketArg    InputBucket = "args"
	BucketKwarg  InputBucket = "kwargs"
)

// InputSignature is the full set of inputs an operation declares.
type InputSignature struct {
	Items []InputItemConfig
}

// GlobalsUnbound returns the names of required global inputs that are not
// satisfied by the given set of currently-bound global names.
func (s InputSignature) GlobalsUnbound(bound map[string]bool) []string {
	var missing []string
	for _, item := range s.Items {
		if item.Bucket != BucketGlobal || !item.Required {
			continue
		}
		if !bound[item.Name] {
			missing = append(missing, item.Name)
		}
	}
	return missing
}

// Check validates a candidate binding of bucket -> name -> value against the
// signature: every required item must be present and kind-compatible, and
// every bound item with a StructTag must pass it.
func (s InputSignature) Check(bound map[InputBucket]map[string]SV) error {
	for _, item := range s.Items {
		vals := bound[item.Bucket]
		v, ok := vals[item.Name]
		if !ok {
			if item.Required {
				return &KernelError{Code: ErrSignature, Message: "missing required input " + string(item.Bucket) + "." + item.Name}
			}
			continue
		}
		if item.Kind != "" && v.Kind() != item.Kind {
			return &KernelError{Code: ErrSignature, Message: "input " + item.Name + " expected kind " + string(item.Kind) + " got " + string(v.Kind())}
		}
		if item.StructTag != "" {
			if err := validate.Var(v.ToJSON(), item.StructTag); err != nil {
				return &KernelError{Code: ErrSignature, Message: "input " + item.Name + " failed validation " + item.StructTag, Err: err}
			}
		}
	}
	return nil
}

// CheckStruct runs go-playground/validator over a Go struct that some
// compiled-in (non-markdown) cell uses to describe its bound inputs, using
// the struct's own `validate` field tags. It is separate from Check, which
// evaluates per-item StructTags and does not call it.
func CheckStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return &KernelError{Code: ErrSignature, Message: "struct validation failed", Err: err}
	}
	return nil
}

// OutputKind distinguishes a plain value output from a callable function
// output (the latter carries its own nested InputSignature for its params).
type OutputKind string

const (
	OutputValue    OutputKind = "value"
	OutputFunction OutputKind = "function"
)

// OutputSignature is the static descriptor a compiled operation carries
// about the shape of what it produces: a plain value, or a function whose
// params the step driver must bind on each call. It never changes across
// firings, unlike OperationFnOutput below.
type OutputSignature struct {
	Kind   OutputKind
	Params InputSignature // only meaningful when Kind == OutputFunction
}

// OperationFnOutput is the result of one firing of an operation's Effect
// (or Call): the produced value plus anything it wrote to stdout/stderr.
// A failed effect is still represented as one of these (Output: Null,
// Stderr: [msg]) rather than omitted, so dependents can fire on the
// failure as a first-class value.
type OperationFnOutput struct {
	Output SV
	Stdout []string
	Stderr []string
}
