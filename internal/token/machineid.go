package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const machineIDPrefix = "KotlinNativeAPI/"

// DeriveMachineID computes the 64-hex-char SHA-256 fingerprint described
// in spec §4.6. A caller-supplied 64-char override takes precedence.
func DeriveMachineID(override, profileARN, refreshToken string) string {
	if len(override) == 64 {
		return override
	}
	seed := machineIDPrefix + refreshToken
	if strings.HasPrefix(profileARN, "arn:aws") && strings.Contains(profileARN, "profile/") {
		seed = machineIDPrefix + profileARN
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
