package services

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tahcohcat/gocalm-web/internal/credits"
	"github.com/tahcohcat/gocalm-web/internal/database"
	"github.com/tahcohcat/gocalm-web/internal/models"
)

type fixture struct {
	db          *database.DB
	ledger      *credits.Service
	users       *UserService
	jobs        *JobService
	meditations *MeditationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ledger := credits.NewService(db, 1)
	return &fixture{
		db:          db,
		ledger:      ledger,
		users:       NewUserService(db, ledger, 2),
		jobs:        NewJobService(db, ledger),
		meditations: NewMeditationService(db),
	}
}

func (f *fixture) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := f.users.CreateUser(&models.CreateUserRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func TestUserService_CreateAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "alice")

	if u.Credits != 2 {
		t.Errorf("Credits = %d, want sign-up bonus 2", u.Credits)
	}
	if u.DisplayName != "alice" {
		t.Errorf("DisplayName = %q, want username fallback", u.DisplayName)
	}

	if _, err := f.users.CreateUser(&models.CreateUserRequest{Username: "alice", Email: "other@example.com", Password: "secret123"}); err == nil {
		t.Error("expected duplicate username error")
	}

	got, err := f.users.AuthenticateUser(&models.LoginRequest{Username: "alice", Password: "secret123"})
	if err != nil {
		t.Fatalf("AuthenticateUser() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("authenticated user %d, want %d", got.ID, u.ID)
	}

	if _, err := f.users.AuthenticateUser(&models.LoginRequest{Username: "alice", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}

	byID, err := f.users.GetUserByID(u.ID)
	if err != nil || byID.Credits != 2 || byID.Password != "" {
		t.Errorf("GetUserByID() = %+v, %v", byID, err)
	}
}

func TestUserService_Validation(t *testing.T) {
	f := newFixture(t)
	bad := []models.CreateUserRequest{
		{Username: "ab", Email: "ab@example.com", Password: "secret123"},
		{Username: "valid", Email: "not-an-email", Password: "secret123"},
		{Username: "valid", Email: "v@example.com", Password: "123"},
	}
	for _, req := range bad {
		req := req
		if _, err := f.users.CreateUser(&req); err == nil {
			t.Errorf("CreateUser(%+v) succeeded", req)
		}
	}
}

func TestJobService_EnqueueChargesCredits(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "bob")

	for i := 0; i < 2; i++ {
		if _, err := f.jobs.Enqueue(u.ID, "a big presentation"); err != nil {
			t.Fatalf("Enqueue() %d error = %v", i, err)
		}
	}
	if _, err := f.jobs.Enqueue(u.ID, "one more"); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("Enqueue() without credits error = %v", err)
	}

	balance, _ := f.ledger.Balance(u.ID)
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
	jobs, err := f.jobs.ListForUser(u.ID, 10)
	if err != nil || len(jobs) != 2 {
		t.Errorf("ListForUser() = %d jobs, %v; rejected enqueue must not leave a job", len(jobs), err)
	}
}

func TestJobService_EnqueueValidatesSituation(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "carol")

	for _, s := range []string{"", "   ", strings.Repeat("x", 501)} {
		if _, err := f.jobs.Enqueue(u.ID, s); !errors.Is(err, ErrInvalidSituation) {
			t.Errorf("Enqueue(len=%d) error = %v", len(s), err)
		}
	}
	if balance, _ := f.ledger.Balance(u.ID); balance != 2 {
		t.Errorf("invalid requests were charged, balance = %d", balance)
	}
}

func TestJobService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "dave")

	job, err := f.jobs.Enqueue(u.ID, "sleep")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobQueued {
		t.Errorf("Status = %s", job.Status)
	}

	claimed, err := f.jobs.ClaimNext("w1")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext() = %v, %v", claimed, err)
	}
	if claimed.ID != job.ID || claimed.Status != models.JobProcessing || claimed.Attempts != 1 || claimed.StartedAt == nil {
		t.Errorf("claimed = %+v", claimed)
	}

	if next, err := f.jobs.ClaimNext("w2"); err != nil || next != nil {
		t.Errorf("second ClaimNext() = %v, %v; want empty queue", next, err)
	}

	m := &models.Meditation{JobID: job.ID, UserID: u.ID, Situation: job.Situation, StorageKey: job.ID + ".mp3", ContentType: "audio/mpeg", DurationMs: 90000, SizeBytes: 1234}
	if err := f.meditations.Create(m); err != nil {
		t.Fatal(err)
	}
	if err := f.jobs.Complete(job.ID, m.ID); err != nil {
		t.Fatal(err)
	}

	done, err := f.jobs.GetForUser(job.ID, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.JobDone || done.MeditationID == nil || *done.MeditationID != m.ID {
		t.Errorf("done job = %+v", done)
	}

	if _, err := f.jobs.GetForUser(job.ID, u.ID+1); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("other user's job lookup error = %v", err)
	}
	if err := f.jobs.Fail(job.ID, "late failure"); err == nil {
		t.Error("Fail() on a finished job should error")
	}

	byJob, err := f.meditations.GetByJobID(job.ID)
	if err != nil || byJob.ID != m.ID {
		t.Errorf("GetByJobID() = %+v, %v", byJob, err)
	}
	if err := f.meditations.Create(&models.Meditation{JobID: job.ID, UserID: u.ID, Situation: "dup", StorageKey: "other", ContentType: "audio/mpeg"}); err == nil {
		t.Error("second artifact for the same job should be rejected")
	}
}

func TestJobService_FailRefundsOnce(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "erin")

	job, err := f.jobs.Enqueue(u.ID, "traffic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.jobs.ClaimNext("w1"); err != nil {
		t.Fatal(err)
	}
	if err := f.jobs.Fail(job.ID, "no segment produced usable audio"); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.RefundJob(job.ID); err != nil {
		t.Fatal(err)
	}

	if balance, _ := f.ledger.Balance(u.ID); balance != 2 {
		t.Errorf("balance = %d, want 2 after a single refund", balance)
	}
	got, _ := f.jobs.Get(job.ID)
	if got.Status != models.JobFailed || got.Error != "no segment produced usable audio" {
		t.Errorf("failed job = %+v", got)
	}
}

func TestJobService_ClaimIsExclusive(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "frank")
	if err := f.ledger.Grant(u.ID, 20, credits.ReasonGrant); err != nil {
		t.Fatal(err)
	}
	const n = 10
	for i := 0; i < n; i++ {
		if _, err := f.jobs.Enqueue(u.ID, "job"); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := f.jobs.ClaimNext("w")
				if err != nil {
					t.Errorf("ClaimNext() error = %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), n)
	}
	for id, c := range seen {
		if c != 1 {
			t.Errorf("job %s claimed %d times", id, c)
		}
	}
}

func TestJobService_MarkInterrupted(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "gina")

	job, err := f.jobs.Enqueue(u.ID, "deadline")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.jobs.ClaimNext("w1"); err != nil {
		t.Fatal(err)
	}

	if n, err := f.jobs.MarkInterrupted(time.Hour); err != nil || n != 0 {
		t.Errorf("fresh job marked: n=%d err=%v", n, err)
	}

	if _, err := f.db.Exec(`UPDATE jobs SET started_at = ? WHERE id = ?`, time.Now().UTC().Add(-2*time.Hour), job.ID); err != nil {
		t.Fatal(err)
	}
	if n, err := f.jobs.MarkInterrupted(time.Hour); err != nil || n != 1 {
		t.Fatalf("MarkInterrupted() = %d, %v", n, err)
	}

	got, _ := f.jobs.Get(job.ID)
	if got.Status != models.JobFailed || got.Error != "interrupted by restart" {
		t.Errorf("job = %+v", got)
	}
	if balance, _ := f.ledger.Balance(u.ID); balance != 2 {
		t.Errorf("balance = %d, interrupted job should be refunded", balance)
	}
}

func TestMeditationService_ListForUser(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "hank")

	for i, key := range []string{"a.mp3", "b.mp3"} {
		m := &models.Meditation{
			JobID:       key,
			UserID:      u.ID,
			Situation:   "s",
			StorageKey:  key,
			ContentType: "audio/mpeg",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := f.meditations.Create(m); err != nil {
			t.Fatal(err)
		}
	}

	list, err := f.meditations.ListForUser(u.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].StorageKey != "b.mp3" {
		t.Errorf("ListForUser() = %+v, want newest first", list)
	}
	if _, err := f.meditations.Get("missing"); !errors.Is(err, ErrMeditationNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}
