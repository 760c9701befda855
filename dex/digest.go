// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"github.com/dchest/blake2b"
)

// HashPayload computes the reference digest used by the simulation harness
// and test fixtures to stand in for the attested messaging substrate's own
// digest, which is opaque to this engine. Production deployments verify a
// digest handed to them by that substrate; they never compute one.
func HashPayload(payload []byte) Digest {
	h := blake2b.New256()
	h.Write(payload)
	sum := h.Sum(nil)
	var d Digest
	copy(d[:], sum)
	return d
}
