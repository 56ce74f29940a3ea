package core

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/cpu"
)

// checkAVX reports whether the host CPU supports AVX instructions. Unlike the
// cgo/AVX distance kernels this check originally gated, vecmath's kernels are
// portable Go with no SIMD path, so the absence of AVX is informational only.
func checkAVX() {
	if !cpu.X86.HasAVX {
		log.Info().Msg("CPU does not report AVX support; vecmath kernels are portable Go and are unaffected")
		return
	}
	log.Debug().Msg("CPU supports AVX instructions")
}

func init() {
	checkAVX()
}
