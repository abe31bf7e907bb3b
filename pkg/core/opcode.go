package core

import (
	"fmt"
	"sort"
)

// Opcode identifies an instruction of the transformation VM.
type Opcode uint8

// Instruction set.
const (
	OpInvalid Opcode = iota
	OpNop
	OpPush
	OpPushInt
	OpPushFloat
	OpPushTrue
	OpPushFalse
	OpPushNull
	OpPop
	OpDup
	OpSwap
	OpLoad
	OpStore
	OpModel
	OpNew
	OpAllOf
	OpGet
	OpSet
	OpCall
	OpBuiltin
	OpReturn
	OpGoto
	OpIf
	OpIfNot
	OpIterate
	OpEndIterate
	OpLog
	opcodeCount
)

// ArgKind is the declared type of an operation argument.
type ArgKind uint8

// Argument kinds.
const (
	ArgString  ArgKind = iota + 1 // literal string
	ArgInt                        // literal int64
	ArgFloat                      // literal float64
	ArgLocal                      // local variable name
	ArgModel                      // declared model parameter name
	ArgType                       // element type name
	ArgFeature                    // feature (attribute or reference) name
	ArgLabel                      // jump target inside the current block
	ArgCallee                     // block, external or lib.name reference
	ArgBuiltin                    // builtin operation name
	ArgCount                      // non-negative argument count
)

var argKindNames = map[ArgKind]string{
	ArgString:  "string",
	ArgInt:     "int",
	ArgFloat:   "float",
	ArgLocal:   "local",
	ArgModel:   "model",
	ArgType:    "type",
	ArgFeature: "feature",
	ArgLabel:   "label",
	ArgCallee:  "callee",
	ArgBuiltin: "builtin",
	ArgCount:   "count",
}

func (k ArgKind) String() string {
	if s, ok := argKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ArgKind(%d)", k)
}

// OpInfo describes an opcode: its mnemonic, declared arity and stack effect.
type OpInfo struct {
	Name string
	Args []ArgKind

	// Pops and Pushes are the declared stack effect. For opcodes whose
	// CountArg is >= 0 the number of pops is taken from that argument.
	Pops     int
	Pushes   int
	CountArg int

	// Mutates reports whether the opcode writes to a model.
	Mutates bool
}

// Arity returns the number of arguments the opcode requires.
func (i OpInfo) Arity() int { return len(i.Args) }

var opTable = [opcodeCount]OpInfo{
	OpInvalid:    {Name: "invalid", CountArg: -1},
	OpNop:        {Name: "nop", CountArg: -1},
	OpPush:       {Name: "push", Args: []ArgKind{ArgString}, Pushes: 1, CountArg: -1},
	OpPushInt:    {Name: "pushi", Args: []ArgKind{ArgInt}, Pushes: 1, CountArg: -1},
	OpPushFloat:  {Name: "pushd", Args: []ArgKind{ArgFloat}, Pushes: 1, CountArg: -1},
	OpPushTrue:   {Name: "pusht", Pushes: 1, CountArg: -1},
	OpPushFalse:  {Name: "pushf", Pushes: 1, CountArg: -1},
	OpPushNull:   {Name: "pushnull", Pushes: 1, CountArg: -1},
	OpPop:        {Name: "pop", Pops: 1, CountArg: -1},
	OpDup:        {Name: "dup", Pops: 1, Pushes: 2, CountArg: -1},
	OpSwap:       {Name: "swap", Pops: 2, Pushes: 2, CountArg: -1},
	OpLoad:       {Name: "load", Args: []ArgKind{ArgLocal}, Pushes: 1, CountArg: -1},
	OpStore:      {Name: "store", Args: []ArgKind{ArgLocal}, Pops: 1, CountArg: -1},
	OpModel:      {Name: "model", Args: []ArgKind{ArgModel}, Pushes: 1, CountArg: -1},
	OpNew:        {Name: "new", Args: []ArgKind{ArgType, ArgModel}, Pushes: 1, CountArg: -1, Mutates: true},
	OpAllOf:      {Name: "allof", Args: []ArgKind{ArgType, ArgModel}, Pushes: 1, CountArg: -1},
	OpGet:        {Name: "get", Args: []ArgKind{ArgFeature}, Pops: 1, Pushes: 1, CountArg: -1},
	OpSet:        {Name: "set", Args: []ArgKind{ArgFeature}, Pops: 2, CountArg: -1, Mutates: true},
	OpCall:       {Name: "call", Args: []ArgKind{ArgCallee, ArgCount}, Pushes: 1, CountArg: 1},
	OpBuiltin:    {Name: "builtin", Args: []ArgKind{ArgBuiltin, ArgCount}, Pushes: 1, CountArg: 1},
	OpReturn:     {Name: "ret", CountArg: -1},
	OpGoto:       {Name: "goto", Args: []ArgKind{ArgLabel}, CountArg: -1},
	OpIf:         {Name: "if", Args: []ArgKind{ArgLabel}, Pops: 1, CountArg: -1},
	OpIfNot:      {Name: "ifnot", Args: []ArgKind{ArgLabel}, Pops: 1, CountArg: -1},
	OpIterate:    {Name: "iterate", Args: []ArgKind{ArgLabel}, Pops: 1, CountArg: -1},
	OpEndIterate: {Name: "enditerate", CountArg: -1},
	OpLog:        {Name: "log", Pops: 1, CountArg: -1},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op := OpNop; op < opcodeCount; op++ {
		m[opTable[op].Name] = op
	}
	return m
}()

// Info returns the descriptor of the opcode. Unknown opcodes yield the
// descriptor of OpInvalid.
func (op Opcode) Info() OpInfo {
	if op >= opcodeCount {
		return opTable[OpInvalid]
	}
	return opTable[op]
}

// Valid reports whether op is a dispatchable opcode.
func (op Opcode) Valid() bool { return op > OpInvalid && op < opcodeCount }

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Opcode(%d)", uint8(op))
	}
	return opTable[op].Name
}

// LookupOpcode resolves a mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Mnemonics returns all opcode mnemonics, sorted.
func Mnemonics() []string {
	names := make([]string, 0, len(opByName))
	for name := range opByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
