// Package core defines the shared language of the transformation VM.
//
// This package contains:
//   - The instruction set (Opcode, OpInfo, ArgKind)
//   - Loaded program structures (Operation, Block, Module, EffectiveModule)
//   - The model capability interfaces (Model, Element, ModelFactory)
//   - The fault taxonomy (LoadFault, LinkFault, BindFault, ExecutionFault)
//   - Run outcomes, run records and launch options
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
