package userauth

import (
	"context"
	"testing"
)

func BenchmarkValidateAccess(b *testing.B) {
	env := newTestEnv(b)
	bundle := env.register(b, "bench@example.com", "bench", "Correct-Horse-9")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if _, err := env.engine.ValidateAccess(ctx, bundle.AccessToken); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := newTestEnv(b)
	bundle := env.register(b, "bench@example.com", "bench", "Correct-Horse-9")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if _, err := env.engine.Refresh(ctx, bundle.RefreshToken); err != nil {
			b.Fatal(err)
		}
	}
}
