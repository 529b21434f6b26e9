package uploadcore

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func split(data []byte, size int) [][]byte {
	var chunks [][]byte
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

func randomBytes(t *testing.T, n int, seed int64) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.New(rand.NewSource(seed)).Read(buf)
	require.NoError(t, err)
	return buf
}

func newSession(t *testing.T, s *Store, id string, total int) {
	t.Helper()
	_, created, err := s.GetOrCreate(SessionSpec{
		SessionID:      id,
		TotalChunks:    total,
		FileName:       "book.pdf",
		UniqueFileName: id + ".pdf",
		RemoteObjectID: "documents/" + id + ".pdf",
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestAssembleAnyPermutationWithDuplicates(t *testing.T) {
	original := randomBytes(t, 10*1024+17, 1)
	chunks := split(original, 1024)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		s := NewStore(NewMemorySpool())
		newSession(t, s, "perm", len(chunks))

		order := rng.Perm(len(chunks))
		// 随机插入重复投递
		for i := 0; i < 5; i++ {
			order = append(order, rng.Intn(len(chunks)))
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		seen := map[int]bool{}
		for _, idx := range order {
			res, err := s.PutChunk("perm", idx, chunks[idx])
			require.NoError(t, err)
			assert.Equal(t, seen[idx], res.Duplicate)
			seen[idx] = true
			assert.Equal(t, len(seen), res.Received)
			assert.Equal(t, len(seen) == len(chunks), res.Complete)
		}

		assembled, err := s.Assemble("perm")
		require.NoError(t, err)
		assert.True(t, bytes.Equal(original, assembled), "round %d", round)
	}
}

func TestOutOfOrderDelivery(t *testing.T) {
	original := randomBytes(t, 10*1000*1000, 2)
	chunks := split(original, 4*1024*1024)
	require.Len(t, chunks, 3)

	s := NewStore(NewMemorySpool())
	newSession(t, s, "b", 3)
	for _, idx := range []int{2, 0, 1} {
		_, err := s.PutChunk("b", idx, chunks[idx])
		require.NoError(t, err)
	}

	assembled, err := s.Assemble("b")
	require.NoError(t, err)
	assert.Equal(t, len(original), len(assembled))
	assert.True(t, bytes.Equal(original, assembled))
}

func TestDuplicateChunkDoesNotInflate(t *testing.T) {
	original := randomBytes(t, 10*1000*1000, 3)
	chunks := split(original, 4*1024*1024)

	s := NewStore(NewMemorySpool())
	newSession(t, s, "c", 3)

	_, err := s.PutChunk("c", 0, chunks[0])
	require.NoError(t, err)
	first, err := s.PutChunk("c", 1, chunks[1])
	require.NoError(t, err)
	again, err := s.PutChunk("c", 1, chunks[1])
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 2, again.Received)
	assert.False(t, again.Complete)

	last, err := s.PutChunk("c", 2, chunks[2])
	require.NoError(t, err)
	assert.True(t, last.Complete)

	assembled, err := s.Assemble("c")
	require.NoError(t, err)
	assert.Len(t, assembled, len(original))
}

func TestPutChunkErrors(t *testing.T) {
	s := NewStore(NewMemorySpool())

	_, err := s.PutChunk("missing", 1, []byte("x"))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	newSession(t, s, "idx", 2)
	_, err = s.PutChunk("idx", 2, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidChunkIndex)
	_, err = s.PutChunk("idx", -1, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidChunkIndex)

	_, _, err = s.GetOrCreate(SessionSpec{SessionID: "zero", TotalChunks: 0})
	assert.ErrorIs(t, err, ErrInvalidTotalChunks)

	_, _, err = s.GetOrCreate(SessionSpec{SessionID: "idx", TotalChunks: 5})
	assert.ErrorIs(t, err, ErrTotalChunksMismatch)

	_, err = s.Assemble("idx")
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestGetOrCreateOnce(t *testing.T) {
	s := NewStore(NewMemorySpool())

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.GetOrCreate(SessionSpec{SessionID: "race", TotalChunks: 4})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentChunksSameSession(t *testing.T) {
	original := randomBytes(t, 64*256, 4)
	chunks := split(original, 256)

	s := NewStore(NewMemorySpool())
	newSession(t, s, "conc", len(chunks))

	var wg sync.WaitGroup
	for copyN := 0; copyN < 3; copyN++ {
		for i := range chunks {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, err := s.PutChunk("conc", idx, chunks[idx])
				assert.NoError(t, err)
			}(i)
		}
	}
	wg.Wait()

	session, err := s.Get("conc")
	require.NoError(t, err)
	assert.Equal(t, len(chunks), session.ReceivedCount())

	assembled, err := s.Assemble("conc")
	require.NoError(t, err)
	assert.Equal(t, original, assembled)
}

func TestSessionIsolation(t *testing.T) {
	s := NewStore(NewMemorySpool())
	newSession(t, s, "a", 2)
	newSession(t, s, "b", 2)

	_, err := s.PutChunk("a", 0, []byte("aaaa"))
	require.NoError(t, err)
	_, err = s.PutChunk("a", 1, []byte("AAAA"))
	require.NoError(t, err)
	res, err := s.PutChunk("b", 1, []byte("BBBB"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Received)

	sb, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sb.Missing())
	assert.Equal(t, 50.0, sb.Progress())

	assembled, err := s.Assemble("a")
	require.NoError(t, err)
	assert.Equal(t, "aaaaAAAA", string(assembled))
}

func TestExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewStore(NewMemorySpool(), WithClock(clock))

	newSession(t, s, "stale", 3)
	_, err := s.PutChunk("stale", 0, []byte("x"))
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	newSession(t, s, "fresh", 3)

	expired := s.Expire(now.Add(25*time.Minute), 30*time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].SessionID)
	assert.Equal(t, StatusExpired, expired[0].Status)

	assert.False(t, s.Exists("stale"))
	assert.True(t, s.Exists("fresh"))

	_, err = s.PutChunk("stale", 1, []byte("y"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpireSkipsFinalizing(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(NewMemorySpool(), WithClock(func() time.Time { return now }))

	newSession(t, s, "fin", 1)
	_, err := s.PutChunk("fin", 0, []byte("x"))
	require.NoError(t, err)
	_, err = s.BeginFinalize("fin")
	require.NoError(t, err)

	assert.Empty(t, s.Expire(now.Add(time.Hour), time.Minute))
	assert.True(t, s.Exists("fin"))

	s.MarkFailed("fin", "db down")
	assert.Len(t, s.Expire(now.Add(time.Hour), time.Minute), 1)
}

func TestExpireDoesNotBlockOtherSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(NewMemorySpool(), WithClock(func() time.Time { return now }))
	newSession(t, s, "busy", 2)
	newSession(t, s, "idle", 2)

	// 模拟正在写入分片的会话
	busy := s.sessions["busy"]
	busy.mu.Lock()

	reapAt := now.Add(time.Hour)
	now = reapAt

	done := make(chan []*UploadSession, 1)
	go func() { done <- s.Expire(reapAt, time.Minute) }()

	created := make(chan error, 1)
	go func() {
		_, _, err := s.GetOrCreate(SessionSpec{SessionID: "other", TotalChunks: 1})
		if err == nil {
			_, err = s.PutChunk("other", 0, []byte("x"))
		}
		created <- err
	}()

	select {
	case err := <-created:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		busy.mu.Unlock()
		t.Fatal("new session blocked while sessions were being reaped")
	}

	busy.mu.Unlock()
	expired := <-done
	ids := make([]string, 0, len(expired))
	for _, session := range expired {
		ids = append(ids, session.SessionID)
	}
	assert.ElementsMatch(t, []string{"busy", "idle"}, ids)
	assert.True(t, s.Exists("other"))
	assert.False(t, s.Exists("busy"))
	assert.Equal(t, 1, s.Len())
}

func TestGetOrCreateRejectsReapedSession(t *testing.T) {
	s := NewStore(NewMemorySpool())
	newSession(t, s, "gone", 2)

	// 已标记回收但尚未从映射中删除
	s.sessions["gone"].removed = true
	_, _, err := s.GetOrCreate(SessionSpec{SessionID: "gone", TotalChunks: 2})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBeginFinalizeSingleWinner(t *testing.T) {
	s := NewStore(NewMemorySpool())
	newSession(t, s, "f", 1)

	_, err := s.BeginFinalize("f")
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = s.PutChunk("f", 0, []byte("x"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, busy := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.BeginFinalize("f")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrFinalizeInProgress):
				busy++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, busy)

	s.MarkFailed("f", "boom")
	session, err := s.BeginFinalize("f")
	require.NoError(t, err)
	assert.Equal(t, StatusFinalizing, session.Status)

	s.Complete("f")
	assert.False(t, s.Exists("f"))
	_, err = s.PutChunk("f", 0, []byte("x"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttachCatalogSnapshot(t *testing.T) {
	s := NewStore(NewMemorySpool())
	newSession(t, s, "m", 2)
	require.NoError(t, s.AttachCatalog("m", CatalogMeta{Title: "Moby Dick", Year: "1851"}))

	snap, err := s.Get("m")
	require.NoError(t, err)
	require.NotNil(t, snap.Catalog)
	snap.Catalog.Title = "changed"

	again, err := s.Get("m")
	require.NoError(t, err)
	assert.Equal(t, "Moby Dick", again.Catalog.Title)
}

func TestDiskSpoolRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	spool := NewSpool(fs, "/data/upload_spool")
	require.NoError(t, spool.Reset())

	s := NewStore(spool)
	newSession(t, s, "disk", 2)
	_, err := s.PutChunk("disk", 1, []byte("tail"))
	require.NoError(t, err)

	ok, err := afero.DirExists(fs, spool.sessionDir("disk"))
	require.NoError(t, err)
	assert.True(t, ok)

	s.Remove("disk")
	ok, err = afero.DirExists(fs, spool.sessionDir("disk"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProgressRounding(t *testing.T) {
	assert.Equal(t, 33.3, Progress(1, 3))
	assert.Equal(t, 66.7, Progress(2, 3))
	assert.Equal(t, 100.0, Progress(3, 3))
	assert.Equal(t, 0.0, Progress(1, 0))
}
