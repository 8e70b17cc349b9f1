package compiler

import "fmt"

// BaseSymbolType is the base kind of a symbol before pointer depth is applied.
type BaseSymbolType int

const (
	BaseUnknown BaseSymbolType = iota
	BaseNone

	BaseFunction
	BaseFunctionPrototype
	BaseEntryPoint
	BaseSharedFunction
	BaseLabel

	BaseVoid
	BaseBool
	BaseUint8
	BaseUint16
	BaseUint32
	BaseString
)

var baseTypeNames = [...]string{
	BaseUnknown:           "unknown",
	BaseNone:              "none",
	BaseFunction:          "function",
	BaseFunctionPrototype: "function prototype",
	BaseEntryPoint:        "entry point",
	BaseSharedFunction:    "shared function",
	BaseLabel:             "label",
	BaseVoid:              "void",
	BaseBool:              "bool",
	BaseUint8:             "uint8",
	BaseUint16:            "uint16",
	BaseUint32:            "uint32",
	BaseString:            "string",
}

func (b BaseSymbolType) String() string {
	if int(b) >= 0 && int(b) < len(baseTypeNames) {
		return baseTypeNames[b]
	}
	return fmt.Sprintf("BaseSymbolType(%d)", int(b))
}

// SymbolType is a base kind plus a pointer depth. Two types are equal when
// both fields are equal.
type SymbolType struct {
	Base    BaseSymbolType
	Pointer uint8
}

func (t SymbolType) String() string {
	s := t.Base.String()
	for i := uint8(0); i < t.Pointer; i++ {
		s += "*"
	}
	return s
}

// IsCallable reports whether the type names something invocable.
func (t SymbolType) IsCallable() bool {
	switch t.Base {
	case BaseFunction, BaseFunctionPrototype, BaseEntryPoint, BaseSharedFunction:
		return true
	}
	return false
}

// IsValidValue reports whether the type can be held in a variable.
func (t SymbolType) IsValidValue() bool {
	switch t.Base {
	case BaseBool, BaseUint8, BaseUint16, BaseUint32, BaseString:
		return true
	case BaseVoid:
		return t.Pointer > 0
	}
	return false
}

// ExpressionType says how an operand's value is known.
type ExpressionType int

const (
	ExpNone ExpressionType = iota
	ExpConstant
	ExpVariable
)

func (e ExpressionType) String() string {
	switch e {
	case ExpNone:
		return "none"
	case ExpConstant:
		return "constant"
	case ExpVariable:
		return "variable"
	}
	return fmt.Sprintf("ExpressionType(%d)", int(e))
}

// integerRank orders the unsigned integer kinds for widening checks.
// Zero means the base is not an integer kind.
func integerRank(b BaseSymbolType) int {
	switch b {
	case BaseBool, BaseUint8:
		return 1
	case BaseUint16:
		return 2
	case BaseUint32:
		return 3
	}
	return 0
}

// CanImplicitCast reports whether a value of type from (with the given
// expression kind) may be used where to is expected without a cast.
func CanImplicitCast(to, from SymbolType, exp ExpressionType) bool {
	if to == from {
		return true
	}

	// Any pointer converts to void*.
	if from.Pointer > 0 && to.Base == BaseVoid && to.Pointer > 0 {
		return true
	}
	// A constant void* (the null literal) converts to any pointer.
	if to.Pointer > 0 && from.Base == BaseVoid && from.Pointer > 0 && exp == ExpConstant {
		return true
	}

	if to.Pointer != 0 || from.Pointer != 0 {
		return false
	}

	toRank := integerRank(to.Base)
	fromRank := integerRank(from.Base)
	if toRank == 0 || fromRank == 0 {
		return false
	}
	if exp == ExpConstant {
		// Constants convert freely between integer kinds.
		return true
	}
	return toRank >= fromRank
}

// CanExplicitCast reports whether cast<to>(from) is allowed.
func CanExplicitCast(to, from SymbolType) bool {
	if to == from {
		return true
	}
	if to.Base == BaseUnknown || to.Base == BaseNone ||
		from.Base == BaseUnknown || from.Base == BaseNone {
		return false
	}
	return true
}

// LargestTypeForArithmetic picks the result type of a binary arithmetic
// operation. String or invalid operands yield BaseUnknown.
func LargestTypeForArithmetic(a, b SymbolType) SymbolType {
	if a.Base == BaseString || b.Base == BaseString {
		return SymbolType{Base: BaseUnknown}
	}
	ra := integerRank(a.Base)
	rb := integerRank(b.Base)
	if (ra == 0 && a.Pointer == 0) || (rb == 0 && b.Pointer == 0) {
		return SymbolType{Base: BaseUnknown}
	}

	base := a.Base
	if rb > ra {
		base = b.Base
	}
	ptr := a.Pointer
	if b.Pointer > ptr {
		ptr = b.Pointer
	}
	return SymbolType{Base: base, Pointer: ptr}
}

// SizeOf returns the storage size of a type in bytes.
func SizeOf(t SymbolType) int {
	if t.Pointer > 0 || t.Base == BaseString {
		return 2
	}
	switch t.Base {
	case BaseBool, BaseUint8:
		return 1
	case BaseUint16:
		return 2
	case BaseUint32:
		return 4
	}
	return 0
}

// SizeToShift converts an element size to the shift amount used for
// indexed addressing. Only power-of-two sizes occur.
func SizeToShift(size int) int {
	shift := 0
	size >>= 1
	for size > 0 {
		shift++
		size >>= 1
	}
	return shift
}

// tempTag maps a base type to the tag used in synthetic temp names.
func tempTag(t SymbolType) string {
	if t.Pointer > 0 {
		return "ui16"
	}
	switch t.Base {
	case BaseBool:
		return "b"
	case BaseUint8:
		return "ui8"
	case BaseUint16:
		return "ui16"
	case BaseUint32:
		return "ui32"
	case BaseString:
		return "s"
	}
	return "x"
}
