// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import "fmt"

// Opcode selects the fabric stage an instruction triggers.
type Opcode uint8

// Stage opcodes.
const (
	OpFFT Opcode = iota + 1
	OpRNS
	OpNTT
	OpI2F
	OpPWM
	OpProject
)

var opcodeNames = map[Opcode]string{
	OpFFT:     "FFT",
	OpRNS:     "RNS",
	OpNTT:     "NTT",
	OpI2F:     "I2F",
	OpPWM:     "PWM",
	OpProject: "PRJ",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Instruction word layout.
//
//	 3:0   opcode
//	 5:4   degree class n
//	 6     direction (FFT: forward, NTT: inverse)
//	13:8   modulus width K
//	20:16  NTT constant-table selector
//	31:24  RNS modulus selector
//	43:32  scale field
//	59:44  modulus offset QM
const (
	opcodeShift    = 0
	opcodeBits     = 4
	degreeShift    = 4
	degreeBits     = 2
	directionShift = 6
	widthShift     = 8
	widthBits      = 6
	constantsShift = 16
	constantsBits  = 5
	selectShift    = 24
	selectBits     = 8
	scaleShift     = 32
	scaleBits      = 12
	qmShift        = 44
	qmBits         = 16
)

// InstructionBufferSize is the number of words in one instruction buffer.
// The instruction occupies the first word; the rest are zero.
const InstructionBufferSize = 8

// Instruction is one encoded fabric command.
type Instruction uint64

func pack(v uint64, shift, bits uint) uint64 {
	return (v & (1<<bits - 1)) << shift
}

func (ins Instruction) get(shift, bits uint) uint64 {
	return (uint64(ins) >> shift) & (1<<bits - 1)
}

func header(op Opcode, n uint8) uint64 {
	return pack(uint64(op), opcodeShift, opcodeBits) | pack(uint64(n), degreeShift, degreeBits)
}

func flag(b bool) uint64 {
	if b {
		return 1 << directionShift
	}
	return 0
}

// NewFFTInstruction encodes the FFT stage. forward selects the
// decimation-in-frequency encode transform that also samples the error
// polynomials.
func NewFFTInstruction(forward bool, n uint8) Instruction {
	return Instruction(header(OpFFT, n) | flag(forward))
}

// NewRNSInstruction encodes the RNS scaling stage. scaleField is the value
// returned by EncodeRNSScale.
func NewRNSInstruction(scaleField, k, modulusSelect, qm uint32, n uint8) Instruction {
	return Instruction(header(OpRNS, n) |
		pack(uint64(k), widthShift, widthBits) |
		pack(uint64(modulusSelect), selectShift, selectBits) |
		pack(uint64(scaleField), scaleShift, scaleBits) |
		pack(uint64(qm), qmShift, qmBits))
}

// NewNTTInstruction encodes the NTT stage. inverse selects the
// decimation-in-frequency inverse transform.
func NewNTTInstruction(inverse bool, k, constants, qm uint32, n uint8) Instruction {
	return Instruction(header(OpNTT, n) | flag(inverse) |
		pack(uint64(k), widthShift, widthBits) |
		pack(uint64(constants), constantsShift, constantsBits) |
		pack(uint64(qm), qmShift, qmBits))
}

// NewI2FInstruction encodes the integer-to-float stage. The scale is
// stored in two's complement.
func NewI2FInstruction(scale int32, k, qm uint32, n uint8) Instruction {
	return Instruction(header(OpI2F, n) |
		pack(uint64(k), widthShift, widthBits) |
		pack(uint64(uint32(scale)), scaleShift, scaleBits) |
		pack(uint64(qm), qmShift, qmBits))
}

// NewPWMInstruction encodes the point-wise multiplication stage.
func NewPWMInstruction(k, qm uint32, n uint8) Instruction {
	return Instruction(header(OpPWM, n) |
		pack(uint64(k), widthShift, widthBits) |
		pack(uint64(qm), qmShift, qmBits))
}

// NewProjectInstruction encodes the projection stage.
func NewProjectInstruction(n uint8) Instruction {
	return Instruction(header(OpProject, n))
}

// NewInstructionBuffer returns the buffer sent to the instruction port.
func NewInstructionBuffer(ins Instruction) []uint64 {
	buf := make([]uint64, InstructionBufferSize)
	buf[0] = uint64(ins)
	return buf
}

// Opcode returns the stage selector.
func (ins Instruction) Opcode() Opcode { return Opcode(ins.get(opcodeShift, opcodeBits)) }

// DegreeClass returns n such that N = 2^(13+n).
func (ins Instruction) DegreeClass() uint8 { return uint8(ins.get(degreeShift, degreeBits)) }

// Direction returns the direction flag.
func (ins Instruction) Direction() bool { return ins.get(directionShift, 1) == 1 }

// Width returns the modulus width K.
func (ins Instruction) Width() uint32 { return uint32(ins.get(widthShift, widthBits)) }

// Constants returns the NTT constant-table selector.
func (ins Instruction) Constants() uint32 { return uint32(ins.get(constantsShift, constantsBits)) }

// ModulusSelect returns the RNS modulus selector.
func (ins Instruction) ModulusSelect() uint32 { return uint32(ins.get(selectShift, selectBits)) }

// ScaleField returns the raw 12-bit scale field.
func (ins Instruction) ScaleField() uint32 { return uint32(ins.get(scaleShift, scaleBits)) }

// Scale returns the scale field sign-extended from 12 bits.
func (ins Instruction) Scale() int32 {
	s := int32(ins.ScaleField())
	if s >= 1<<(scaleBits-1) {
		s -= 1 << scaleBits
	}
	return s
}

// QM returns the modulus offset.
func (ins Instruction) QM() uint32 { return uint32(ins.get(qmShift, qmBits)) }

// Modulus returns the prime encoded by the width and offset fields.
func (ins Instruction) Modulus() uint64 {
	return Modulus{QM: ins.QM(), K: ins.Width()}.Q()
}

func (ins Instruction) String() string {
	return fmt.Sprintf("%s(n=%d dir=%t k=%d const=%d sel=%d scale=%#x qm=%d)",
		ins.Opcode(), ins.DegreeClass(), ins.Direction(), ins.Width(),
		ins.Constants(), ins.ModulusSelect(), ins.ScaleField(), ins.QM())
}
