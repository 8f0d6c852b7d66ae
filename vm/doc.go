// Package vm implements the ember bytecode runtime.
//
// This package contains:
//   - Tagged value representation
//   - Arena-backed mark-and-sweep heap
//   - Bytecode encoding, builder, and disassembler
//   - Frame-based bytecode interpreter with a bounded operand stack
//   - Runtime configuration and state snapshots
package vm
