package identity

import "golang.org/x/crypto/argon2"

const saltSize = 16

// argon2id parameters: 1 pass, 64 MiB, 4 lanes, 32-byte digest.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
