package tracer

import (
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/go-warden/warden/pkg/logflags"
)

// logFaultingInstruction decodes and logs the instruction at pc.
// Diagnostic only; decode failures are ignored.
func (t *Tracer) logFaultingInstruction(pc uint64) {
	if !logflags.Tracer() || pc == 0 {
		return
	}
	buf := make([]byte, 4)
	if err := t.ReadMemory(pc, buf); err != nil {
		return
	}
	inst, err := arm64asm.Decode(buf)
	if err != nil {
		return
	}
	t.log.Debugf("faulting instruction at %#x: %s", pc, arm64asm.GoSyntax(inst, pc, nil, nil))
}
