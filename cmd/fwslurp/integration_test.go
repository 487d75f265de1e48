//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/ligustah/fwslurp/internal/catalog"
	"github.com/ligustah/fwslurp/internal/testutils"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fws := []testutils.Firmware{
		{Section: catalog.SectionRetail, Version: "4.91", Data: testutils.GenerateTestData(1024 * 1024)},
		{Section: catalog.SectionGEX, Version: "4.80", Data: testutils.GenerateTestData(256 * 1024), FailFirst: 1},
	}
	srv := testutils.StartFirmwareServer(t, fws)

	t.Log("Starting Minio container...")
	minio := testutils.StartMinio(t, ctx, "cli-test-bucket")
	base := []string{"--catalog", srv.CatalogURL(), "--dest", minio.BucketURL}

	t.Run("fetch", func(t *testing.T) {
		res := runCLI(t, "", fastFlags(append([]string{"fetch", "--block-size", "64KiB"}, base...)...)...)
		if res.code != ExitSuccess {
			t.Fatalf("fetch exited %d: %s", res.code, res.stderr)
		}
	})

	t.Run("validate", func(t *testing.T) {
		res := runCLI(t, "", append([]string{"validate", "--verify"}, base...)...)
		if res.code != ExitSuccess {
			t.Fatalf("validate exited %d:\n%s", res.code, res.stdout)
		}
	})

	t.Run("contents", func(t *testing.T) {
		store, err := minio.OpenStore(ctx)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		defer store.Close()

		entries, err := catalog.Parse(srv.Catalog())
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		for i, e := range entries {
			r, err := store.OpenPayloadReader(ctx, e)
			if err != nil {
				t.Fatalf("open %s: %v", e.Key(), err)
			}
			testutils.CompareReaderToData(t, r, fws[i].Data)
			r.Close()
		}
	})

	t.Run("delete", func(t *testing.T) {
		res := runCLI(t, "", "delete", "--dest", minio.BucketURL, "--section", "GEX", "--version", "4.80", "--force")
		if res.code != ExitSuccess {
			t.Fatalf("delete exited %d: %s", res.code, res.stderr)
		}

		res = runCLI(t, "", append([]string{"validate"}, base...)...)
		if res.code != ExitValidationFailed {
			t.Errorf("expected validation failure after delete, got %d", res.code)
		}
	})
}
