package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/stretchr/testify/require"
)

// MustGetInfo fetches info and fails the test on error.
func MustGetInfo(t *testing.T, s store.Store, path string) *store.Info {
	t.Helper()
	info, err := s.GetInfo(testContext(), path)
	require.NoError(t, err, "GetInfo(%s)", path)
	return info
}

// MustCreateDirectory creates a directory below its (existing) parent.
func MustCreateDirectory(t *testing.T, s store.Store, parentPath, path string) {
	t.Helper()
	parent := MustGetInfo(t, s, parentPath)
	require.NoError(t, s.CreateDirectory(testContext(), path, parent), "CreateDirectory(%s)", path)
}

// MustCreateAsset creates an asset with data below its (existing) parent.
func MustCreateAsset(t *testing.T, s store.Store, parentPath, path string, data []byte) {
	t.Helper()
	parent := MustGetInfo(t, s, parentPath)
	require.NoError(t, writeAsset(s, path, true, parent, data), "create asset %s", path)
}

// MustUpdateAsset replaces an existing asset's content.
func MustUpdateAsset(t *testing.T, s store.Store, path string, data []byte) {
	t.Helper()
	asset := MustGetInfo(t, s, path)
	require.NoError(t, writeAsset(s, path, false, asset, data), "update asset %s", path)
}

// MustReadAsset reads an asset's full content.
func MustReadAsset(t *testing.T, s store.Store, path string) []byte {
	t.Helper()
	asset := MustGetInfo(t, s, path)
	r, err := s.GetAssetContent(testContext(), path, asset)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func writeAsset(s store.Store, path string, create bool, info *store.Info, data []byte) error {
	w, err := s.OpenAssetWrite(testContext(), path, create, info)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Abort(err)
		return err
	}
	return w.Close()
}

// writeInPieces writes data with writes of at most piece bytes.
func writeInPieces(s store.Store, path string, create bool, info *store.Info, data []byte, piece int) error {
	w, err := s.OpenAssetWrite(testContext(), path, create, info)
	if err != nil {
		return err
	}
	for len(data) > 0 {
		n := min(piece, len(data))
		if _, err := w.Write(data[:n]); err != nil {
			_ = w.Abort(err)
			return err
		}
		data = data[n:]
	}
	return w.Close()
}

// largePayload returns n bytes of a non-repeating-per-chunk pattern, so a
// chunk read back in the wrong order does not compare equal.
func largePayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i / 1021)
	}
	return data
}

// names extracts the leaf names of infos.
func names(infos []*store.Info) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Name)
	}
	return out
}
