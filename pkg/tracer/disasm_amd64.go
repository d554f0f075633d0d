package tracer

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/go-warden/warden/pkg/logflags"
)

// logFaultingInstruction decodes and logs the instruction at pc.
// Diagnostic only; decode failures are ignored.
func (t *Tracer) logFaultingInstruction(pc uint64) {
	if !logflags.Tracer() || pc == 0 {
		return
	}
	buf := make([]byte, 15)
	if err := t.ReadMemory(pc, buf); err != nil {
		return
	}
	inst, err := x86asm.Decode(buf, 64)
	if err != nil {
		return
	}
	t.log.Debugf("faulting instruction at %#x: %s", pc, x86asm.GoSyntax(inst, pc, nil))
}
