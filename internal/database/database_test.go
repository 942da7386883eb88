package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/NewsTopics/internal/topic"
)

var kst = time.FixedZone("KST", 9*60*60)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(i int) *int { return &i }

func article(link, title string) NewArticle {
	return NewArticle{
		Link:          link,
		Title:         title,
		Description:   "desc " + title,
		Published:     time.Date(2024, 6, 10, 8, 0, 0, 0, kst),
		RawText:       "raw " + title,
		ProcessedText: "반도체 수출 " + title,
	}
}

// persist writes a run where article i gets topics[i] with probs[i].
func persist(t *testing.T, db *DB, at time.Time, arts []NewArticle, topics []int, probs []float64, infos []topic.Info) *PersistResult {
	t.Helper()
	assignments := make([]topic.Assignment, len(arts))
	for i := range arts {
		assignments[i] = topic.Assignment{TopicID: topics[i], Probability: probs[i]}
	}
	res, err := db.PersistRun(context.Background(), &Run{
		RunID:        fmt.Sprintf("run-%d", at.UnixNano()),
		AnalysisDate: at,
		Articles:     arts,
		Assignments:  assignments,
		Topics:       infos,
	})
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	return res
}

func countRows(t *testing.T, db *DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestPersistRun(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)

	res := persist(t, db, at,
		[]NewArticle{article("https://a.com", "A"), article("https://b.com", "B")},
		[]int{0, topic.NoiseTopic}, []float64{0.9, 0},
		[]topic.Info{
			{TopicID: topic.NoiseTopic, Count: 1, Name: "-1_b", Representation: []string{"b"}},
			{TopicID: 0, Count: 1, Name: "0_a", Representation: []string{"반도체", "수출"}},
		})

	if res.Inserted != 2 || res.Updated != 0 || res.Assignments != 2 || res.Topics != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM topic_results WHERE analysis_date = ?", "2024-06-10 09:00:00"); n != 2 {
		t.Errorf("expected 2 assignments, got %d", n)
	}

	a, err := db.GetArticleByLink(context.Background(), "https://a.com")
	if err != nil || a == nil {
		t.Fatalf("expected stored article, got %v, %v", a, err)
	}
	if a.PubDate != "2024-06-10T08:00:00+09:00" {
		t.Errorf("unexpected pub date %q", a.PubDate)
	}

	latest, err := db.GetLatestRun(context.Background())
	if err != nil || latest == nil {
		t.Fatalf("expected run report, got %v, %v", latest, err)
	}
	if latest.Status != RunSuccess || latest.TopicCount != 1 || latest.NoiseCount != 1 {
		t.Errorf("unexpected run report: %+v", latest)
	}
}

func TestReingestPreservesIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)
	persist(t, db, first, []NewArticle{article("https://a.com", "Old title")}, []int{0}, []float64{0.8}, nil)
	before, _ := db.GetArticleByLink(ctx, "https://a.com")

	second := time.Date(2024, 6, 11, 9, 0, 0, 0, kst)
	res := persist(t, db, second, []NewArticle{article("https://a.com", "New title")}, []int{1}, []float64{0.7}, nil)
	after, _ := db.GetArticleByLink(ctx, "https://a.com")

	if res.Inserted != 0 || res.Updated != 1 {
		t.Errorf("expected update path, got %+v", res)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM articles"); n != 1 {
		t.Errorf("expected 1 article row, got %d", n)
	}
	if after.ID != before.ID {
		t.Errorf("expected id %d preserved, got %d", before.ID, after.ID)
	}
	if after.Title != "New title" || after.AnalysisDate != "2024-06-11 09:00:00" {
		t.Errorf("expected mutable fields updated, got %+v", after)
	}
	// History is additive across runs.
	if n := countRows(t, db, "SELECT COUNT(*) FROM topic_results WHERE article_id = ?", after.ID); n != 2 {
		t.Errorf("expected 2 assignments across runs, got %d", n)
	}
}

func TestTopicInfoUpsert(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)
	arts := []NewArticle{article("https://a.com", "A")}

	persist(t, db, at, arts, []int{3}, []float64{0.9},
		[]topic.Info{{TopicID: 3, Count: 42, Name: "3_old", Representation: []string{"old"}}})
	persist(t, db, at, arts, []int{3}, []float64{0.95},
		[]topic.Info{{TopicID: 3, Count: 50, Name: "3_new", Representation: []string{"new"}}})

	if n := countRows(t, db, "SELECT COUNT(*) FROM topic_info WHERE topic_id = 3"); n != 1 {
		t.Fatalf("expected exactly 1 topic_info row, got %d", n)
	}
	info, err := db.TopicForDay(context.Background(), "2024-06-10", 3)
	if err != nil || info == nil {
		t.Fatalf("expected topic info, got %v, %v", info, err)
	}
	if info.Count != 50 || info.Name != "3_new" || info.Representation[0] != "new" {
		t.Errorf("expected upserted values, got %+v", info)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM topic_results"); n != 1 {
		t.Errorf("expected 1 assignment for the re-persisted run, got %d", n)
	}
}

func TestPersistRollsBackOnFailure(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.conn.Exec(`CREATE TRIGGER fail_topic_info BEFORE INSERT ON topic_info
		BEGIN SELECT RAISE(ABORT, 'topic_info unavailable'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err := db.PersistRun(context.Background(), &Run{
		RunID:        "r1",
		AnalysisDate: time.Date(2024, 6, 10, 9, 0, 0, 0, kst),
		Articles:     []NewArticle{article("https://a.com", "A")},
		Assignments:  []topic.Assignment{{TopicID: 0, Probability: 1}},
		Topics:       []topic.Info{{TopicID: 0, Count: 1, Name: "0"}},
	})

	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistError, got %v", err)
	}
	if perr.Stage != "topic_info" {
		t.Errorf("expected topic_info stage, got %s", perr.Stage)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM articles"); n != 0 {
		t.Errorf("expected articles rolled back, got %d rows", n)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM topic_results"); n != 0 {
		t.Errorf("expected assignments rolled back, got %d rows", n)
	}
}

func TestPersistRejectsMismatchedAssignments(t *testing.T) {
	db := openTestDB(t)
	_, err := db.PersistRun(context.Background(), &Run{
		RunID:        "r1",
		AnalysisDate: time.Now(),
		Articles:     []NewArticle{article("https://a.com", "A")},
	})
	var perr *PersistError
	if !errors.As(err, &perr) || perr.Stage != "validate" {
		t.Errorf("expected validate PersistError, got %v", err)
	}
}

// fakeStore is an in-memory articleStore.
type fakeStore struct {
	ids     map[string]int64
	titles  map[string]string
	next    int64
	failFor string
}

func newFakeStore() *fakeStore {
	return &fakeStore{ids: map[string]int64{}, titles: map[string]string{}, next: 100}
}

func (f *fakeStore) insertArticle(_ context.Context, a NewArticle, _ string) (int64, bool, error) {
	if a.Link == f.failFor {
		return 0, false, errors.New("disk full")
	}
	if _, ok := f.ids[a.Link]; ok {
		return 0, false, nil
	}
	f.next++
	f.ids[a.Link] = f.next
	f.titles[a.Link] = a.Title
	return f.next, true, nil
}

func (f *fakeStore) updateArticle(_ context.Context, a NewArticle, _ string) error {
	f.titles[a.Link] = a.Title
	return nil
}

func (f *fakeStore) articleID(_ context.Context, link string) (int64, error) {
	return f.ids[link], nil
}

func TestResolveArticleIDs(t *testing.T) {
	s := newFakeStore()
	ctx := context.Background()

	ids1, ins, upd, err := resolveArticleIDs(ctx, s, []NewArticle{article("x", "1"), article("y", "1")}, "d1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if ins != 2 || upd != 0 {
		t.Errorf("expected 2 inserts, got %d/%d", ins, upd)
	}

	ids2, ins, upd, err := resolveArticleIDs(ctx, s, []NewArticle{article("y", "2"), article("z", "2")}, "d2")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if ins != 1 || upd != 1 {
		t.Errorf("expected 1 insert and 1 update, got %d/%d", ins, upd)
	}
	if ids2[0] != ids1[1] {
		t.Errorf("expected re-observed link to keep id %d, got %d", ids1[1], ids2[0])
	}
	if s.titles["y"] != "2" {
		t.Errorf("expected title updated, got %q", s.titles["y"])
	}

	s.failFor = "bad"
	if _, _, _, err := resolveArticleIDs(ctx, s, []NewArticle{article("bad", "x")}, "d3"); err == nil {
		t.Error("expected error from failing store")
	}
}

func TestNoiseExcludedFromQueries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)

	persist(t, db, at,
		[]NewArticle{article("https://a.com", "A"), article("https://b.com", "B")},
		[]int{0, topic.NoiseTopic}, []float64{0.9, 0},
		[]topic.Info{
			{TopicID: topic.NoiseTopic, Count: 50, Name: "-1"},
			{TopicID: 0, Count: 12, Name: "0"},
		})

	rows, err := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10"})
	if err != nil {
		t.Fatalf("range query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].TopicID != 0 {
		t.Errorf("expected only topic 0 rows, got %+v", rows)
	}
	if rows[0].TopicName != "0" || rows[0].TopicCount != 12 {
		t.Errorf("expected joined topic info, got %+v", rows[0])
	}

	noise, _ := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10", TopicID: intPtr(-1)})
	if len(noise) != 0 {
		t.Errorf("expected no rows for the noise topic, got %d", len(noise))
	}

	topics, _ := db.TopicsForDay(ctx, "2024-06-10")
	if len(topics) != 1 || topics[0].TopicID != 0 {
		t.Errorf("expected only topic 0, got %+v", topics)
	}

	trends, _ := db.TopicTrends(ctx, "2024-06-10", "2024-06-10", nil, 10)
	for _, p := range trends {
		if p.TopicID == topic.NoiseTopic {
			t.Error("expected noise excluded from trends")
		}
	}
}

func TestArticlesInRangeSingleDayOrdering(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	d9 := time.Date(2024, 6, 9, 9, 0, 0, 0, kst)
	d10 := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)
	persist(t, db, d9, []NewArticle{article("https://old.com", "Old")}, []int{0}, []float64{0.99}, nil)
	persist(t, db, d10,
		[]NewArticle{article("https://a.com", "A"), article("https://b.com", "B"), article("https://c.com", "C")},
		[]int{0, 1, 0}, []float64{0.5, 0.9, 0.7}, nil)

	rows, err := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10"})
	if err != nil {
		t.Fatalf("range query failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"https://b.com", "https://c.com", "https://a.com"}
	for i, r := range rows {
		if r.AnalysisDay != "2024-06-10" {
			t.Errorf("row %d: expected day 2024-06-10, got %s", i, r.AnalysisDay)
		}
		if r.Link != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], r.Link)
		}
	}

	both, _ := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-09", EndDay: "2024-06-10"})
	if len(both) != 4 || both[3].AnalysisDay != "2024-06-09" {
		t.Errorf("expected newest day first, got %+v", both)
	}

	empty, err := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-01-01", EndDay: "2024-01-02"})
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty success, got %v, %v", empty, err)
	}
}

func TestArticlesInRangeFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)

	arts := []NewArticle{
		article("https://a.com", "Samsung 반도체"),
		article("https://b.com", "금리 인상"),
		article("https://c.com", "100% 성장"),
	}
	persist(t, db, at, arts, []int{0, 1, 1}, []float64{0.9, 0.8, 0.7}, nil)

	rows, _ := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10", Keyword: "SAMSUNG"})
	if len(rows) != 1 || rows[0].Link != "https://a.com" {
		t.Errorf("expected case-insensitive title match, got %+v", rows)
	}

	rows, _ = db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10", TopicID: intPtr(1)})
	if len(rows) != 2 {
		t.Errorf("expected 2 rows for topic 1, got %d", len(rows))
	}

	rows, _ = db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10", Keyword: "%"})
	if len(rows) != 1 || rows[0].Link != "https://c.com" {
		t.Errorf("expected literal %% match, got %+v", rows)
	}

	rows, _ = db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10", Keyword: "desc 금리"})
	if len(rows) != 1 || rows[0].Link != "https://b.com" {
		t.Errorf("expected description match, got %+v", rows)
	}
}

func TestAnalysisDays(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, day := range []int{8, 10, 9, 10} {
		at := time.Date(2024, 6, day, 9+i, 0, 0, 0, kst)
		persist(t, db, at, []NewArticle{article(fmt.Sprintf("https://%d.com", i), "x")}, []int{0}, []float64{1}, nil)
	}

	days, err := db.AnalysisDays(ctx, 0)
	if err != nil {
		t.Fatalf("dates query failed: %v", err)
	}
	want := []string{"2024-06-10", "2024-06-09", "2024-06-08"}
	if len(days) != len(want) {
		t.Fatalf("expected %v, got %v", want, days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("expected %v, got %v", want, days)
		}
	}

	limited, _ := db.AnalysisDays(ctx, 2)
	if len(limited) != 2 || limited[0] != "2024-06-10" {
		t.Errorf("expected 2 most recent days, got %v", limited)
	}
}

func TestTopicTrendsThreshold(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)

	persist(t, db, at, []NewArticle{article("https://a.com", "A")}, []int{0}, []float64{1},
		[]topic.Info{
			{TopicID: 0, Count: 15, Name: "0_big"},
			{TopicID: 1, Count: 10, Name: "1_edge"},
			{TopicID: 2, Count: 9, Name: "2_small"},
		})

	points, err := db.TopicTrends(ctx, "2024-06-04", "2024-06-10", nil, 10)
	if err != nil {
		t.Fatalf("trends failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %+v", points)
	}
	if points[0].TopicID != 0 || points[1].TopicID != 1 {
		t.Errorf("expected topics ordered by count, got %+v", points)
	}

	filtered, _ := db.TopicTrends(ctx, "2024-06-04", "2024-06-10", intPtr(2), 10)
	if len(filtered) != 1 || filtered[0].Count != 9 {
		t.Errorf("expected explicit topic regardless of threshold, got %+v", filtered)
	}
}

func TestDayQueriesUseLatestRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	morning := time.Date(2024, 6, 10, 6, 0, 0, 0, kst)
	evening := time.Date(2024, 6, 10, 18, 0, 0, 0, kst)

	persist(t, db, morning, []NewArticle{article("https://a.com", "A")}, []int{0}, []float64{1},
		[]topic.Info{{TopicID: 0, Count: 20, Name: "0_morning"}})
	persist(t, db, evening, []NewArticle{article("https://b.com", "B")}, []int{0}, []float64{1},
		[]topic.Info{{TopicID: 0, Count: 30, Name: "0_evening"}})

	points, _ := db.TopicTrends(ctx, "2024-06-10", "2024-06-10", nil, 10)
	if len(points) != 1 || points[0].Count != 30 {
		t.Errorf("expected one point from the latest run, got %+v", points)
	}

	info, _ := db.TopicForDay(ctx, "2024-06-10", 0)
	if info == nil || info.Name != "0_evening" {
		t.Errorf("expected evening topic info, got %+v", info)
	}

	texts, _ := db.ProcessedTexts(ctx, "2024-06-10", 0)
	if len(texts) != 1 || texts[0] != "반도체 수출 B" {
		t.Errorf("expected texts from the latest run only, got %v", texts)
	}

	latest, _ := db.LatestRunOfDay(ctx, "2024-06-10")
	if latest != "2024-06-10 18:00:00" {
		t.Errorf("unexpected latest run %q", latest)
	}

	rows, _ := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10"})
	if len(rows) != 1 || rows[0].Link != "https://b.com" {
		t.Errorf("expected range rows from the latest run only, got %+v", rows)
	}
}

func TestArticlesInRangeReobservedArticleOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	morning := time.Date(2024, 6, 10, 6, 0, 0, 0, kst)
	evening := time.Date(2024, 6, 10, 18, 0, 0, 0, kst)
	next := time.Date(2024, 6, 11, 6, 0, 0, 0, kst)

	persist(t, db, morning, []NewArticle{article("https://a.com", "A")}, []int{0}, []float64{0.4},
		[]topic.Info{{TopicID: 0, Count: 20, Name: "0_morning"}})
	persist(t, db, evening, []NewArticle{article("https://a.com", "A")}, []int{1}, []float64{0.8},
		[]topic.Info{{TopicID: 1, Count: 30, Name: "1_evening"}})
	persist(t, db, next, []NewArticle{article("https://a.com", "A")}, []int{0}, []float64{0.6},
		[]topic.Info{{TopicID: 0, Count: 25, Name: "0_next"}})

	rows, err := db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-10"})
	if err != nil {
		t.Fatalf("range query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for 1 article, got %d", len(rows))
	}
	if rows[0].AnalysisDate != "2024-06-10 18:00:00" || rows[0].TopicName != "1_evening" {
		t.Errorf("expected the evening run's assignment, got %+v", rows[0])
	}

	// One row per day across a multi-day range.
	rows, _ = db.ArticlesInRange(ctx, RangeFilter{StartDay: "2024-06-10", EndDay: "2024-06-11"})
	if len(rows) != 2 || rows[0].AnalysisDay != "2024-06-11" || rows[1].AnalysisDay != "2024-06-10" {
		t.Errorf("expected one row per day, newest first, got %+v", rows)
	}
}

func TestTopicArticles(t *testing.T) {
	db := openTestDB(t)
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)
	persist(t, db, at,
		[]NewArticle{article("https://a.com", "A"), article("https://b.com", "B"), article("https://c.com", "C")},
		[]int{0, 0, 0}, []float64{0.2, 0.9, 0.5}, nil)

	rows, err := db.TopicArticles(context.Background(), "2024-06-10 09:00:00", 0, 2)
	if err != nil {
		t.Fatalf("topic articles failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Link != "https://b.com" || rows[1].Link != "https://c.com" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestRecordFailedRunAndStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)

	if err := db.RecordFailedRun(ctx, "r-failed", at, 3, errors.New("db locked")); err != nil {
		t.Fatalf("record failed run: %v", err)
	}
	persist(t, db, at.Add(time.Hour), []NewArticle{article("https://a.com", "A")}, []int{0}, []float64{1}, nil)

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalArticles != 1 || stats.SuccessfulRuns != 1 || stats.FailedRuns != 1 || stats.AnalysisDays != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LatestRun == nil || stats.LatestRun.Status != RunSuccess {
		t.Errorf("expected latest run to be the success, got %+v", stats.LatestRun)
	}

	runs, _ := db.GetRecentRuns(ctx, 10)
	if len(runs) != 2 || runs[1].Error != "db locked" {
		t.Errorf("unexpected recent runs: %+v", runs)
	}
}

func TestFailedRunThenSuccessSameID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, kst)

	db.RecordFailedRun(ctx, "r1", at, 1, errors.New("boom"))
	_, err := db.PersistRun(ctx, &Run{
		RunID:        "r1",
		AnalysisDate: at,
		Articles:     []NewArticle{article("https://a.com", "A")},
		Assignments:  []topic.Assignment{{TopicID: 0, Probability: 1}},
	})
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM run_reports"); n != 1 {
		t.Errorf("expected 1 run report, got %d", n)
	}
	latest, _ := db.GetLatestRun(ctx)
	if latest.Status != RunSuccess || latest.Error != "" {
		t.Errorf("expected success to replace failure, got %+v", latest)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: Postgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected postgres query: %s", got)
	}
	lite := &DB{dialect: SQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("unexpected sqlite query: %s", got)
	}
}

func TestTrailingDays(t *testing.T) {
	now := time.Date(2024, 6, 10, 1, 0, 0, 0, kst)
	start, end := TrailingDays(now, 7)
	if start != "2024-06-04" || end != "2024-06-10" {
		t.Errorf("expected 2024-06-04..2024-06-10, got %s..%s", start, end)
	}
	start, end = TrailingDays(now, 0)
	if start != end {
		t.Errorf("expected single day for n<1, got %s..%s", start, end)
	}
}

func TestParseDay(t *testing.T) {
	if _, err := ParseDay("2024-06-10"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "2024/06/10", "2024-13-01", "yesterday"} {
		if _, err := ParseDay(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFormatDayDisplay(t *testing.T) {
	if got := FormatDayDisplay("2024-06-10"); got != "Jun 10, 2024" {
		t.Errorf("expected 'Jun 10, 2024', got %q", got)
	}
	if got := FormatDayDisplay("garbage"); got != "garbage" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestPragmasOnEveryConnection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Hold the first connection so the pool has to open a second one.
	first, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("first conn: %v", err)
	}
	defer first.Close()
	second, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("second conn: %v", err)
	}
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var fk, timeout int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("conn %d: reading foreign_keys: %v", i, err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("conn %d: reading busy_timeout: %v", i, err)
		}
		if fk != 1 {
			t.Errorf("conn %d: expected foreign_keys=1, got %d", i, fk)
		}
		if timeout != 5000 {
			t.Errorf("conn %d: expected busy_timeout=5000, got %d", i, timeout)
		}
	}

	// A dangling assignment is rejected on the second connection too.
	_, err = second.ExecContext(ctx,
		"INSERT INTO topic_results (article_id, topic_id, probability, analysis_date, analysis_day) VALUES (999, 0, 0.5, '2024-06-10 09:00:00', '2024-06-10')")
	if err == nil {
		t.Error("expected foreign key violation for a missing article")
	}
}
