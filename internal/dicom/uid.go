package dicom

import (
	"hash/fnv"
	"math/big"
)

// uidRoot is the UUID derived root from PS3.5 B.2; the rest of the UID is
// a decimal hash so the same seed always yields the same UID.
const uidRoot = "2.25."

// DeterministicUID derives a valid DICOM UID from seed.
func DeterministicUID(seed string) string {
	h := fnv.New128a()
	_, _ = h.Write([]byte(seed))
	return uidRoot + new(big.Int).SetBytes(h.Sum(nil)).String()
}
