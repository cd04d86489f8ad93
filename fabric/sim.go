// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/aloha"
)

// Stage latencies of the cycle model, in fabric cycles.
const (
	butterfliesPerCycle = 8
	fftLatency          = 64
	nttLatency          = 32
	pointwiseLanes      = 2
	pointwiseLatency    = 16
)

// ErrNoInstruction is returned by Execute when no instruction is pending.
var ErrNoInstruction = errors.New("no instruction pending")

// Sim is an in-memory accelerator. It implements aloha.Transport and
// aloha.Clock and executes every instruction with the fabric model.
// Block memories are sized for the largest supported degree.
type Sim struct {
	mu sync.Mutex

	fft *FFT
	ntt *NTTEngine

	regions [][]uint64
	pending *aloha.Instruction
	trace   []aloha.Instruction
	ticks   uint64
	stalled bool
}

// NewSim returns a simulator with zeroed block memories.
func NewSim() *Sim {
	s := &Sim{
		fft:     NewFFT(),
		ntt:     NewNTTEngine(),
		regions: make([][]uint64, len(aloha.Regions())),
	}
	for _, r := range aloha.Regions() {
		size := aloha.MaxDegree
		if r == aloha.RegionFFT {
			size = 2 * aloha.MaxDegree
		}
		if r == aloha.RegionFFTExpand {
			continue
		}
		s.regions[r] = make([]uint64, size)
	}
	return s
}

var _ aloha.Transport = (*Sim)(nil)
var _ aloha.Clock = (*Sim)(nil)

// Stall makes WaitIdle and Execute block until their context is done,
// modelling an unresponsive fabric.
func (s *Sim) Stall(stalled bool) {
	s.mu.Lock()
	s.stalled = stalled
	s.mu.Unlock()
}

// Trace returns the instructions executed so far, in order.
func (s *Sim) Trace() []aloha.Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]aloha.Instruction(nil), s.trace...)
}

// Now returns the simulated tick counter.
func (s *Sim) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Peek returns a copy of the first n words of region r.
func (s *Sim) Peek(r aloha.Region, n int) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.memory(r)[:n]...)
}

func (s *Sim) memory(r aloha.Region) []uint64 {
	if r == aloha.RegionFFTExpand {
		r = aloha.RegionFFT
	}
	return s.regions[r]
}

func (s *Sim) blockIfStalled(ctx context.Context) error {
	s.mu.Lock()
	stalled := s.stalled
	s.mu.Unlock()
	if stalled {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (s *Sim) write(ctx context.Context, dst aloha.Region, data []uint64, layout aloha.Layout) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !dst.Valid() {
		return fmt.Errorf("%w: %v", aloha.ErrInvalidRegion, dst)
	}

	n, expand := layout.Expanded()
	if expand || dst == aloha.RegionFFTExpand {
		if expand && len(data) != 1<<(aloha.MinLogN+int(n)) {
			return fmt.Errorf("%w: %d words for %v", aloha.ErrBufferSize, len(data), layout)
		}
		data = Expand(data)
		dst = aloha.RegionFFT
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mem := s.memory(dst)
	if len(data) > len(mem) {
		return fmt.Errorf("%w: %d words into %v of %d", aloha.ErrBufferSize, len(data), dst, len(mem))
	}
	copy(mem, data)
	s.ticks += uint64(len(data))
	return nil
}

func (s *Sim) read(ctx context.Context, src aloha.Region, dst []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !src.Valid() {
		return fmt.Errorf("%w: %v", aloha.ErrInvalidRegion, src)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mem := s.memory(src)
	if len(dst) > len(mem) {
		return fmt.Errorf("%w: %d words from %v of %d", aloha.ErrBufferSize, len(dst), src, len(mem))
	}
	copy(dst, mem)
	s.ticks += uint64(len(dst))
	return nil
}

// Send implements aloha.Transport.
func (s *Sim) Send(ctx context.Context, dst aloha.Region, data []uint64, layout aloha.Layout) error {
	return s.write(ctx, dst, data, layout)
}

// Receive implements aloha.Transport.
func (s *Sim) Receive(ctx context.Context, src aloha.Region, dst []uint64) error {
	return s.read(ctx, src, dst)
}

// DMAToRegion implements aloha.Transport. The copy completes immediately.
func (s *Sim) DMAToRegion(ctx context.Context, dst aloha.Region, src []uint64, layout aloha.Layout) error {
	return s.write(ctx, dst, src, layout)
}

// DMAFromRegion implements aloha.Transport. The copy completes immediately.
func (s *Sim) DMAFromRegion(ctx context.Context, dst []uint64, src aloha.Region) error {
	return s.read(ctx, src, dst)
}

// WaitIdle implements aloha.Transport.
func (s *Sim) WaitIdle(ctx context.Context) error {
	return s.blockIfStalled(ctx)
}

// SendInstructions implements aloha.Transport.
func (s *Sim) SendInstructions(ctx context.Context, buf []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(buf) != aloha.InstructionBufferSize {
		return fmt.Errorf("%w: instruction buffer of %d words", aloha.ErrBufferSize, len(buf))
	}
	ins := aloha.Instruction(buf[0])

	s.mu.Lock()
	s.pending = &ins
	s.ticks += aloha.InstructionBufferSize
	s.mu.Unlock()
	return nil
}

// Execute implements aloha.Transport.
func (s *Sim) Execute(ctx context.Context, seed *uint64) (uint32, error) {
	if err := s.blockIfStalled(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return 0, ErrNoInstruction
	}
	ins := *s.pending
	s.pending = nil

	var sd uint64
	if seed != nil {
		sd = *seed
	}
	if err := s.run(ins, sd); err != nil {
		return 0, fmt.Errorf("%v: %w", ins, err)
	}

	cycles := StageCycles(ins)
	s.trace = append(s.trace, ins)
	s.ticks += uint64(cycles) * aloha.CPUFreqMHz / (aloha.CoprocFreqMHz * aloha.CyclesPerTick)
	return cycles, nil
}

// StageCycles returns the modelled fabric cycles of one instruction.
func StageCycles(ins aloha.Instruction) uint32 {
	logN := aloha.MinLogN + uint32(ins.DegreeClass())
	n := uint32(1) << logN
	switch ins.Opcode() {
	case aloha.OpFFT:
		return n*logN/butterfliesPerCycle + fftLatency
	case aloha.OpNTT:
		return n*logN/butterfliesPerCycle + nttLatency
	default:
		return n/pointwiseLanes + pointwiseLatency
	}
}

func (s *Sim) run(ins aloha.Instruction, seed uint64) error {
	n := 1 << (aloha.MinLogN + int(ins.DegreeClass()))
	fft := s.regions[aloha.RegionFFT][:2*n]
	msg := s.regions[aloha.RegionNTTMessage][:n]
	key := s.regions[aloha.RegionNTTKey][:n]
	v := s.regions[aloha.RegionNTTV][:n]
	e1 := s.regions[aloha.RegionNTTE1][:n]
	im := s.regions[aloha.RegionFFTIntermediate][:n]
	errs := s.regions[aloha.RegionError][:n]
	q := ins.Modulus()

	switch ins.Opcode() {
	case aloha.OpFFT:
		out, err := s.fft.Transform(fft, ins.Direction())
		if err != nil {
			return err
		}
		copy(fft, out)
		if !ins.Direction() {
			return nil
		}
		ep, err := SampleErrors(seed, n)
		if err != nil {
			return err
		}
		for i := range errs {
			errs[i] = aloha.PackErrorWord(ep.V[i], ep.E0[i], ep.E1[i])
		}

	case aloha.OpRNS:
		m := ToResidues(fft, aloha.DecodeRNSScale(ins.ScaleField(), ins.DegreeClass()), q)
		ep := UnpackErrors(errs)
		AddSignMagnitude(m, ep.E0, EBits, q)
		copy(msg, m)
		copy(v, LiftPoly(ep.V, VBits, q))
		copy(e1, LiftPoly(ep.E1, EBits, q))

	case aloha.OpNTT:
		if ins.Direction() {
			return s.ntt.INTTBatch(q, msg)
		}
		if err := s.ntt.NTTBatch(q, msg, v, e1); err != nil {
			return err
		}
		a, err := SamplePK1(seed, n, q)
		if err != nil {
			return err
		}
		copy(im, a)

	case aloha.OpI2F:
		copy(fft, ToFloat(msg, ins.Scale(), q))

	case aloha.OpPWM:
		c0, err := s.ntt.MulAdd(q, key, v, msg)
		if err != nil {
			return err
		}
		c1, err := s.ntt.MulAdd(q, im, v, e1)
		if err != nil {
			return err
		}
		copy(msg, c0)
		copy(key, c1)

	case aloha.OpProject:
		copy(fft, Project(fft))

	default:
		return fmt.Errorf("unknown opcode %v", ins.Opcode())
	}
	return nil
}

// UnpackErrors splits RegionError words into the three error polynomials.
func UnpackErrors(words []uint64) ErrorPolys {
	ep := ErrorPolys{
		V:  make([]uint64, len(words)),
		E0: make([]uint64, len(words)),
		E1: make([]uint64, len(words)),
	}
	for i, w := range words {
		ep.V[i], ep.E0[i], ep.E1[i] = aloha.UnpackErrorWord(w)
	}
	return ep
}
