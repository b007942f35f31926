package password

import "testing"

func BenchmarkHash_Argon2id(b *testing.B) {
	cfg := DefaultConfig()
	pw := "this is a strong password 123!"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Hash(pw); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}

func BenchmarkVerify_Argon2id(b *testing.B) {
	benchmarkVerify(b, DefaultConfig())
}

func BenchmarkVerify_Bcrypt(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmBcrypt
	benchmarkVerify(b, cfg)
}

func benchmarkVerify(b *testing.B, cfg Config) {
	b.Helper()

	pw := "this is a strong password 123!"
	h, err := cfg.Hash(pw)
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := cfg.Verify(h, pw)
		if err != nil || !ok {
			b.Fatalf("Verify failed: ok=%v err=%v", ok, err)
		}
	}
}
