package tls

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func touch(t *testing.T, when time.Time, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.Chtimes(p, when, when); err != nil {
			t.Fatalf("chtimes %s: %v", p, err)
		}
	}
}

func TestCertificateReloader_Start(t *testing.T) {
	ca := newTestCA(t)
	dir := t.TempDir()
	certPEM, keyPEM := ca.issue(t, certOptions{commonName: "first.berth.test"})
	certFile, keyFile := writePair(t, dir, certPEM, keyPEM)

	r := NewCertificateReloader(certFile, keyFile, time.Hour, discardLogger())
	if r.Certificate() != nil {
		t.Fatal("Certificate() before Start should be nil")
	}
	if _, err := r.GetCertificateFunc()(nil); err == nil {
		t.Fatal("GetCertificateFunc before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cert, err := r.GetCertificateFunc()(nil)
	if err != nil {
		t.Fatalf("GetCertificateFunc() error = %v", err)
	}
	if cert.Leaf == nil || cert.Leaf.Subject.CommonName != "first.berth.test" {
		t.Errorf("leaf = %+v, want first.berth.test", cert.Leaf)
	}
}

func TestCertificateReloader_StartErrors(t *testing.T) {
	ca := newTestCA(t)
	now := time.Now()

	tests := []struct {
		name  string
		setup func(t *testing.T, dir string) (string, string)
	}{
		{"missing files", func(t *testing.T, dir string) (string, string) {
			return filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")
		}},
		{"garbage", func(t *testing.T, dir string) (string, string) {
			return writePair(t, dir, []byte("junk"), []byte("junk"))
		}},
		{"key mismatch", func(t *testing.T, dir string) (string, string) {
			certPEM, _ := ca.issue(t, certOptions{commonName: "a"})
			_, otherKey := ca.issue(t, certOptions{commonName: "b"})
			return writePair(t, dir, certPEM, otherKey)
		}},
		{"expired", func(t *testing.T, dir string) (string, string) {
			certPEM, keyPEM := ca.issue(t, certOptions{
				commonName: "old",
				notBefore:  now.Add(-48 * time.Hour),
				notAfter:   now.Add(-time.Hour),
			})
			return writePair(t, dir, certPEM, keyPEM)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certFile, keyFile := tt.setup(t, t.TempDir())
			r := NewCertificateReloader(certFile, keyFile, time.Hour, discardLogger())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := r.Start(ctx); err == nil {
				t.Fatal("Start() error = nil")
			}
		})
	}
}

func TestCertificateReloader_Check(t *testing.T) {
	ca := newTestCA(t)
	dir := t.TempDir()
	certPEM, keyPEM := ca.issue(t, certOptions{commonName: "first.berth.test"})
	certFile, keyFile := writePair(t, dir, certPEM, keyPEM)
	touch(t, time.Now().Add(-time.Hour), certFile, keyFile)

	r := NewCertificateReloader(certFile, keyFile, time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if r.Check() {
		t.Fatal("Check() reloaded unchanged files")
	}

	// A broken renewal keeps the previous pair.
	writePair(t, dir, []byte("junk"), []byte("junk"))
	touch(t, time.Now().Add(-30*time.Minute), certFile, keyFile)
	if r.Check() {
		t.Fatal("Check() installed an unparsable pair")
	}
	if cn := r.Certificate().Leaf.Subject.CommonName; cn != "first.berth.test" {
		t.Fatalf("CN after failed reload = %q", cn)
	}

	renewedCert, renewedKey := ca.issue(t, certOptions{commonName: "renewed.berth.test"})
	writePair(t, dir, renewedCert, renewedKey)
	touch(t, time.Now(), certFile, keyFile)
	if !r.Check() {
		t.Fatal("Check() did not reload renewed pair")
	}
	if cn := r.Certificate().Leaf.Subject.CommonName; cn != "renewed.berth.test" {
		t.Errorf("CN after reload = %q, want renewed.berth.test", cn)
	}
}

func TestCertificateReloader_PollsUntilCancelled(t *testing.T) {
	ca := newTestCA(t)
	dir := t.TempDir()
	certPEM, keyPEM := ca.issue(t, certOptions{commonName: "first.berth.test"})
	certFile, keyFile := writePair(t, dir, certPEM, keyPEM)
	touch(t, time.Now().Add(-time.Hour), certFile, keyFile)

	r := NewCertificateReloader(certFile, keyFile, 10*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	renewedCert, renewedKey := ca.issue(t, certOptions{commonName: "renewed.berth.test"})
	writePair(t, dir, renewedCert, renewedKey)
	touch(t, time.Now(), certFile, keyFile)

	deadline := time.Now().Add(2 * time.Second)
	for r.Certificate().Leaf.Subject.CommonName != "renewed.berth.test" {
		if time.Now().After(deadline) {
			t.Fatal("renewed certificate was not picked up")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCertificateReloader_ConcurrentAccess(t *testing.T) {
	ca := newTestCA(t)
	dir := t.TempDir()
	certPEM, keyPEM := ca.issue(t, certOptions{commonName: "api.berth.test"})
	certFile, keyFile := writePair(t, dir, certPEM, keyPEM)

	r := NewCertificateReloader(certFile, keyFile, time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	get := r.GetCertificateFunc()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if _, err := get(nil); err != nil {
					t.Errorf("GetCertificate: %v", err)
					return
				}
			}
		}()
	}
	for i := range 5 {
		touch(t, time.Now().Add(time.Duration(i+1)*time.Second), certFile, keyFile)
		r.Check()
	}
	wg.Wait()
}
