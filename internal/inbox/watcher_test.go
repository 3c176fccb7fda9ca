package inbox

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/metrics"
	"github.com/jo25425/dona-sub000/internal/validate"
)

type memoryRecorder struct {
	mu   sync.Mutex
	runs []core.RunRecord
}

func (m *memoryRecorder) Record(_ context.Context, run core.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRecorder) snapshot() []core.RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.RunRecord(nil), m.runs...)
}

func facebookExport(t *testing.T) []byte {
	t.Helper()
	entries := map[string]string{
		"profile_information/profile_information.json": `{"profile_v2": {"name": {"full_name": "Dana"}}}`,
		"messages/inbox/t_1/message_1.json": `{"participants":[{"name":"Dana"},{"name":"Eli"}],"messages":[
			{"sender_name":"Eli","timestamp_ms":2000,"content":"morning"},
			{"sender_name":"Dana","timestamp_ms":1000,"content":"hey you"}]}`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newWatcher(t *testing.T) (*Watcher, *memoryRecorder, string, string) {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, "inbox")
	out := filepath.Join(root, "out")
	rec := &memoryRecorder{}
	w, err := New(Options{
		Dir:      in,
		OutDir:   out,
		Recorder: rec,
		Metrics:  metrics.New(),
		Debounce: 20 * time.Millisecond,
		Interval: time.Millisecond,
	})
	require.NoError(t, err)
	return w, rec, in, out
}

func TestNewCreatesSourceDirs(t *testing.T) {
	w, _, in, _ := newWatcher(t)
	require.Len(t, w.Dirs(), len(core.Sources))
	for _, name := range []string{"whatsapp", "facebook", "instagram", "imessage"} {
		info, err := os.Stat(filepath.Join(in, name))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}

	_, err := New(Options{})
	require.Error(t, err)
}

func TestScanProcessesDonation(t *testing.T) {
	w, rec, in, out := newWatcher(t)
	zipPath := filepath.Join(in, "facebook", "export.zip")
	require.NoError(t, os.WriteFile(zipPath, facebookExport(t), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(in, "facebook", "next.zip.part"), []byte("x"), 0o600))

	runs, err := w.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	require.Equal(t, core.Facebook, run.Source)
	require.Equal(t, core.OutcomeOK, run.Outcome)
	require.Equal(t, 1, run.Conversations)
	require.Equal(t, filepath.Join(out, "dona-"+run.RunID+".json"), run.Output)
	require.Equal(t, runs, rec.snapshot())

	data, err := os.ReadFile(run.Output)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc, "anonymizedConversations")
	require.NotContains(t, doc, "participantNamesToPseudonyms")

	_, err = os.Stat(zipPath)
	require.True(t, os.IsNotExist(err), "input should have moved")
	_, err = os.Stat(filepath.Join(in, "facebook", processedDir, run.RunID, "export.zip"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(in, "facebook", "next.zip.part"))
	require.NoError(t, err, "partial downloads stay pending")

	again, err := w.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestScanMovesFailures(t *testing.T) {
	w, rec, in, out := newWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(in, "imessage", "chat.db"), []byte("not a database"), 0o600))

	runs, err := w.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, core.OutcomeFailed, runs[0].Outcome)
	require.Equal(t, "UnknownError", runs[0].Reason)
	require.Empty(t, runs[0].Output)
	require.Len(t, rec.snapshot(), 1)

	_, err = os.Stat(filepath.Join(in, "imessage", failedDir, runs[0].RunID, "chat.db"))
	require.NoError(t, err)
	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err), "no result is written for a failed run")
}

func TestScanCanceledLeavesInputs(t *testing.T) {
	w, rec, in, _ := newWatcher(t)
	path := filepath.Join(in, "facebook", "export.zip")
	require.NoError(t, os.WriteFile(path, facebookExport(t), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Scan(ctx)
	require.Error(t, err)
	require.Empty(t, rec.snapshot())
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestRunPicksUpNewFiles(t *testing.T) {
	w, rec, in, _ := newWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before dropping the export.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(in, "facebook", "export.zip"), facebookExport(t), 0o600))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, core.OutcomeOK, rec.snapshot()[0].Outcome)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestScanAppliesThresholds(t *testing.T) {
	root := t.TempDir()
	rec := &memoryRecorder{}
	w, err := New(Options{
		Dir:      filepath.Join(root, "inbox"),
		OutDir:   filepath.Join(root, "out"),
		Recorder: rec,
		Interval: time.Millisecond,
		Thresholds: func(core.DataSource) validate.Thresholds {
			return validate.Thresholds{MinConversations: 5}
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "inbox", "facebook", "export.zip"), facebookExport(t), 0o600))

	runs, err := w.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "TooFewConversations", runs[0].Reason)
}
