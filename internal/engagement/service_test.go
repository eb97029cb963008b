package engagement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/cryptoinsight/internal/model"
)

type pair struct {
	articleID int64
	username  string
}

// fakeStore はArticleRepositoryとEngagementRepositoryを兼ねるインメモリ実装。
// 行の変更とカウンタ更新を1つのロックで行う。
type fakeStore struct {
	mu        sync.Mutex
	articles  map[int64]*model.Article
	likes     map[pair]time.Time
	bookmarks map[pair]time.Time
	views     []pair
	err       error
	lastLimit int
	tick      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles:  make(map[int64]*model.Article),
		likes:     make(map[pair]time.Time),
		bookmarks: make(map[pair]time.Time),
		tick:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) next() time.Time {
	f.tick = f.tick.Add(time.Second)
	return f.tick
}

func (f *fakeStore) add(a *model.Article) *model.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.articles) + 1)
	if a.Status == "" {
		a.Status = model.ArticlePublished
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = f.next()
	}
	f.articles[a.ID] = a
	return a
}

// ArticleRepository

func (f *fakeStore) Create(ctx context.Context, a *model.Article) error {
	f.add(a)
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id int64) (*model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.articles[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) Publish(ctx context.Context, id int64, author string) error { return nil }

func (f *fakeStore) ListPublished(ctx context.Context, limit int) ([]model.Article, error) {
	return nil, nil
}

func (f *fakeStore) ListByAuthor(ctx context.Context, author string, limit int) ([]model.Article, error) {
	return nil, nil
}

func (f *fakeStore) Stats(ctx context.Context, id int64) (*model.ArticleStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.articles[id]
	if !ok {
		return nil, nil
	}
	return &model.ArticleStats{Views: a.Views, Likes: a.LikeCount, Bookmarks: a.BookmarkCount}, nil
}

func (f *fakeStore) Ranked(ctx context.Context, ranking model.Ranking, days, limit int) ([]model.ArticleSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastLimit = limit
	var out []model.ArticleSummary
	for _, a := range f.articles {
		if a.Status != model.ArticlePublished {
			continue
		}
		out = append(out, model.ArticleSummary{
			ID: a.ID, Title: a.Title, Author: a.Author, Views: a.Views,
			LikeCount: a.LikeCount, BookmarkCount: a.BookmarkCount, CreatedAt: a.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) AuthorStats(ctx context.Context, author string) (*model.AuthorStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &model.AuthorStats{}
	for _, a := range f.articles {
		if a.Author == author && a.Status == model.ArticlePublished {
			s.TotalArticles++
			s.TotalViews += a.Views
			s.TotalLikes += a.LikeCount
			s.TotalBookmarks += a.BookmarkCount
		}
	}
	return s, nil
}

// EngagementRepository

func (f *fakeStore) addMember(set map[pair]time.Time, counter func(*model.Article) *int64, id int64, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	a, ok := f.articles[id]
	if !ok {
		return false, model.NewStoreError("add", model.ErrNotFound, nil)
	}
	k := pair{id, user}
	if _, exists := set[k]; exists {
		return false, nil
	}
	set[k] = f.next()
	*counter(a)++
	return true, nil
}

func (f *fakeStore) removeMember(set map[pair]time.Time, counter func(*model.Article) *int64, id int64, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	k := pair{id, user}
	if _, exists := set[k]; !exists {
		return false, nil
	}
	delete(set, k)
	*counter(f.articles[id])--
	return true, nil
}

func likeCounter(a *model.Article) *int64     { return &a.LikeCount }
func bookmarkCounter(a *model.Article) *int64 { return &a.BookmarkCount }

func (f *fakeStore) AddLike(ctx context.Context, id int64, user string) (bool, error) {
	return f.addMember(f.likes, likeCounter, id, user)
}
func (f *fakeStore) RemoveLike(ctx context.Context, id int64, user string) (bool, error) {
	return f.removeMember(f.likes, likeCounter, id, user)
}
func (f *fakeStore) HasLike(ctx context.Context, id int64, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.likes[pair{id, user}]
	return ok, nil
}
func (f *fakeStore) AddBookmark(ctx context.Context, id int64, user string) (bool, error) {
	return f.addMember(f.bookmarks, bookmarkCounter, id, user)
}
func (f *fakeStore) RemoveBookmark(ctx context.Context, id int64, user string) (bool, error) {
	return f.removeMember(f.bookmarks, bookmarkCounter, id, user)
}
func (f *fakeStore) HasBookmark(ctx context.Context, id int64, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.bookmarks[pair{id, user}]
	return ok, nil
}

func (f *fakeStore) RecordView(ctx context.Context, id int64, user, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	a, ok := f.articles[id]
	if !ok {
		return model.NewStoreError("track view", model.ErrNotFound, nil)
	}
	f.views = append(f.views, pair{id, user})
	a.Views++
	return nil
}

func (f *fakeStore) listBy(set map[pair]time.Time, user string, limit int) ([]model.MembershipEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastLimit = limit
	var out []model.MembershipEntry
	for k, at := range set {
		if k.username == user {
			a := f.articles[k.articleID]
			out = append(out, model.MembershipEntry{ArticleID: a.ID, Title: a.Title, Author: a.Author, LikeCount: a.LikeCount, At: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

func (f *fakeStore) LikedBy(ctx context.Context, user string, limit int) ([]model.MembershipEntry, error) {
	return f.listBy(f.likes, user, limit)
}
func (f *fakeStore) BookmarkedBy(ctx context.Context, user string, limit int) ([]model.MembershipEntry, error) {
	return f.listBy(f.bookmarks, user, limit)
}

func (f *fakeStore) Likers(ctx context.Context, id int64, limit int) ([]model.Liker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Liker
	for k, at := range f.likes {
		if k.articleID == id {
			out = append(out, model.Liker{Username: k.username, LikedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LikedAt.After(out[j].LikedAt) })
	return out, nil
}

func (f *fakeStore) SummaryByUser(ctx context.Context, user string) (*model.UserEngagementSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &model.UserEngagementSummary{}
	for k := range f.likes {
		if k.username == user {
			s.Liked++
		}
	}
	for k := range f.bookmarks {
		if k.username == user {
			s.Bookmarked++
		}
	}
	return s, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *bytes.Buffer) {
	t.Helper()
	store := newFakeStore()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewService(store, store, time.Second, 7, logger, nil), store, &buf
}

func TestLikeUnlikeRoundTrip(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "BTC", Author: "pub"})

	if ok, err := svc.Like(ctx, a.ID, "alice"); err != nil || !ok {
		t.Fatalf("Like() = (%v, %v), want (true, nil)", ok, err)
	}
	if liked, _ := svc.IsLiked(ctx, a.ID, "alice"); !liked {
		t.Error("IsLiked() = false after Like")
	}
	if ok, err := svc.Unlike(ctx, a.ID, "alice"); err != nil || !ok {
		t.Fatalf("Unlike() = (%v, %v), want (true, nil)", ok, err)
	}

	stats, err := svc.ArticleStats(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Likes != 0 {
		t.Errorf("like_count = %d, want 0 after round trip", stats.Likes)
	}
	if liked, _ := svc.IsLiked(ctx, a.ID, "alice"); liked {
		t.Error("IsLiked() = true after Unlike")
	}
}

// 2回目のいいねは状態を変えない
func TestLike_Idempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "ETH", Author: "pub"})

	if ok, _ := svc.Like(ctx, a.ID, "alice"); !ok {
		t.Fatal("first Like() = false")
	}
	ok, err := svc.Like(ctx, a.ID, "alice")
	if err != nil || ok {
		t.Errorf("second Like() = (%v, %v), want (false, nil)", ok, err)
	}
	if stats, _ := svc.ArticleStats(ctx, a.ID); stats.Likes != 1 {
		t.Errorf("like_count = %d, want 1", stats.Likes)
	}
}

func TestUnbookmark_Absent(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.add(&model.Article{Title: "SOL", Author: "pub"})

	ok, err := svc.Unbookmark(context.Background(), a.ID, "alice")
	if err != nil || ok {
		t.Errorf("Unbookmark() = (%v, %v), want (false, nil)", ok, err)
	}
}

// 一意制約の競合はエラーではなく状態変化なしとして扱う
func TestLike_ConflictAbsorbed(t *testing.T) {
	svc, store, buf := newTestService(t)
	a := store.add(&model.Article{Title: "ADA", Author: "pub"})
	store.err = model.NewStoreError("add like", model.ErrConflict, nil)

	ok, err := svc.Like(context.Background(), a.ID, "alice")
	if err != nil || ok {
		t.Errorf("Like() = (%v, %v), want (false, nil)", ok, err)
	}
	if buf.Len() != 0 {
		t.Errorf("conflict should not be logged as failure: %s", buf.String())
	}
}

func TestLike_MissingArticle(t *testing.T) {
	svc, _, _ := newTestService(t)

	ok, err := svc.Like(context.Background(), 404, "alice")
	if ok || !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Like() = (%v, %v), want (false, ErrNotFound)", ok, err)
	}
}

func TestLike_InvalidTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Like(ctx, 0, "alice"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Like(0) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Bookmark(ctx, 1, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Bookmark(empty user) error = %v, want ErrNotFound", err)
	}
	if liked, err := svc.IsLiked(ctx, 1, ""); liked || err != nil {
		t.Errorf("IsLiked(empty user) = (%v, %v), want (false, nil)", liked, err)
	}
}

// ストアに到達できない場合は中立値とunavailableを返し、ERRORで記録する
func TestOperations_StoreUnavailable(t *testing.T) {
	svc, store, buf := newTestService(t)
	a := store.add(&model.Article{Title: "XRP", Author: "pub"})
	store.err = model.NewStoreError("op", model.ErrUnavailable, context.DeadlineExceeded)
	ctx := context.Background()

	if ok, err := svc.Like(ctx, a.ID, "alice"); ok || !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Like() = (%v, %v)", ok, err)
	}
	if ok, err := svc.TrackView(ctx, a.ID, "alice", ""); ok || !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("TrackView() = (%v, %v)", ok, err)
	}
	if list, err := svc.Trending(ctx, 10, 0); list != nil || !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Trending() = (%v, %v)", list, err)
	}
	if rate, err := svc.EngagementRate(ctx, a.ID); rate != 0 || !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("EngagementRate() = (%v, %v)", rate, err)
	}
	if stats, err := svc.AuthorStats(ctx, "pub"); stats == nil || stats.TotalArticles != 0 || !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("AuthorStats() = (%v, %v)", stats, err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"kind":"unavailable"`)) {
		t.Errorf("failure kind not logged: %s", buf.String())
	}
}

// alice: 3回閲覧し1回ブックマークした記事のカウンタ
func TestAliceScenario(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "DeFi", Author: "pub"})

	for i := 0; i < 3; i++ {
		if ok, err := svc.TrackView(ctx, a.ID, "alice", "10.0.0.1"); err != nil || !ok {
			t.Fatalf("TrackView() = (%v, %v)", ok, err)
		}
	}
	if ok, err := svc.Bookmark(ctx, a.ID, "alice"); err != nil || !ok {
		t.Fatalf("Bookmark() = (%v, %v)", ok, err)
	}

	stats, err := svc.ArticleStats(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := model.ArticleStats{Views: 3, Likes: 0, Bookmarks: 1}
	if stats != want {
		t.Errorf("ArticleStats() = %+v, want %+v", stats, want)
	}

	rate, err := svc.EngagementRate(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 33.33 {
		t.Errorf("EngagementRate() = %v, want 33.33", rate)
	}
	if len(store.views) != 3 {
		t.Errorf("view events = %d, want 3", len(store.views))
	}
}

// alice と bob の同時いいねで更新が失われない
func TestConcurrentLikes(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "BTC", Author: "pub"})

	users := []string{"alice", "bob"}
	for i := 0; i < 30; i++ {
		users = append(users, fmt.Sprintf("user%02d", i))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if _, err := svc.Like(ctx, a.ID, u); err != nil {
				t.Errorf("Like(%s) error = %v", u, err)
			}
		}(u)
	}
	wg.Wait()

	stats, err := svc.ArticleStats(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Likes != int64(len(users)) {
		t.Errorf("like_count = %d, want %d", stats.Likes, len(users))
	}
	for _, u := range []string{"alice", "bob"} {
		if liked, _ := svc.IsLiked(ctx, a.ID, u); !liked {
			t.Errorf("IsLiked(%s) = false", u)
		}
	}
}

func TestEngagementRate_ZeroViews(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "DOT", Author: "pub"})
	if _, err := svc.Like(ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	rate, err := svc.EngagementRate(ctx, a.ID)
	if err != nil || rate != 0 {
		t.Errorf("EngagementRate() = (%v, %v), want (0, nil)", rate, err)
	}
}

func TestEngagementRate_MissingArticle(t *testing.T) {
	svc, _, buf := newTestService(t)

	rate, err := svc.EngagementRate(context.Background(), 99)
	if rate != 0 || !errors.Is(err, model.ErrNotFound) {
		t.Errorf("EngagementRate() = (%v, %v), want (0, ErrNotFound)", rate, err)
	}
	if buf.Len() != 0 {
		t.Errorf("not found should not be logged as failure: %s", buf.String())
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		stats model.ArticleStats
		want  float64
	}{
		{model.ArticleStats{}, 0},
		{model.ArticleStats{Views: 0, Likes: 5}, 0},
		{model.ArticleStats{Views: 4, Likes: 1, Bookmarks: 1}, 50},
		{model.ArticleStats{Views: 3, Likes: 2}, 66.67},
	}
	for _, tt := range tests {
		if got := Rate(tt.stats); got != tt.want {
			t.Errorf("Rate(%+v) = %v, want %v", tt.stats, got, tt.want)
		}
	}
}

func TestRanking_LimitClamped(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		limit int
		want  int
	}{
		{0, defaultRankingLimit},
		{-3, defaultRankingLimit},
		{5, 5},
		{1000, maxLimit},
	}
	for _, tt := range tests {
		if _, err := svc.Popular(ctx, tt.limit); err != nil {
			t.Fatal(err)
		}
		if store.lastLimit != tt.want {
			t.Errorf("Popular(%d) used limit %d, want %d", tt.limit, store.lastLimit, tt.want)
		}
	}

	if _, err := svc.LikedArticles(ctx, "alice", 0); err != nil {
		t.Fatal(err)
	}
	if store.lastLimit != defaultListLimit {
		t.Errorf("LikedArticles(0) used limit %d, want %d", store.lastLimit, defaultListLimit)
	}
}

func TestArticleInfo(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "NFT", Author: "pub"})
	draft := store.add(&model.Article{Title: "draft", Author: "pub", Status: model.ArticleDraft})

	svc.TrackView(ctx, a.ID, "", "")
	svc.TrackView(ctx, a.ID, "", "")
	svc.Like(ctx, a.ID, "alice")

	info, err := svc.ArticleInfo(ctx, a.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsLiked || info.IsBookmarked || info.EngagementRate != 50 {
		t.Errorf("ArticleInfo() = %+v", info)
	}

	anon, err := svc.ArticleInfo(ctx, a.ID, "")
	if err != nil || anon.IsLiked {
		t.Errorf("ArticleInfo(anonymous) = (%+v, %v)", anon, err)
	}

	if _, err := svc.ArticleInfo(ctx, draft.ID, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ArticleInfo(draft) error = %v, want ErrNotFound", err)
	}
}

func TestUserListsAndSummary(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	first := store.add(&model.Article{Title: "first", Author: "pub"})
	second := store.add(&model.Article{Title: "second", Author: "pub"})

	svc.Like(ctx, first.ID, "alice")
	svc.Like(ctx, second.ID, "alice")
	svc.Like(ctx, second.ID, "bob")
	svc.Bookmark(ctx, first.ID, "alice")

	liked, err := svc.LikedArticles(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(liked) != 2 || liked[0].ArticleID != second.ID {
		t.Errorf("LikedArticles() = %+v, want newest first", liked)
	}

	bookmarked, _ := svc.BookmarkedArticles(ctx, "alice", 10)
	if len(bookmarked) != 1 || bookmarked[0].ArticleID != first.ID {
		t.Errorf("BookmarkedArticles() = %+v", bookmarked)
	}

	likers, _ := svc.Likers(ctx, second.ID, 10)
	if len(likers) != 2 || likers[0].Username != "bob" {
		t.Errorf("Likers() = %+v, want bob first", likers)
	}

	summary, err := svc.UserSummary(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Liked != 2 || summary.Bookmarked != 1 {
		t.Errorf("UserSummary() = %+v", summary)
	}

	if list, err := svc.LikedArticles(ctx, "", 10); list != nil || err != nil {
		t.Errorf("LikedArticles(empty) = (%v, %v)", list, err)
	}
}

func TestAuthorStats(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.add(&model.Article{Title: "a", Author: "pub"})
	store.add(&model.Article{Title: "b", Author: "pub"})
	store.add(&model.Article{Title: "c", Author: "other"})
	svc.TrackView(ctx, a.ID, "", "")

	stats, err := svc.AuthorStats(ctx, "pub")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalArticles != 2 || stats.TotalViews != 1 {
		t.Errorf("AuthorStats() = %+v", stats)
	}
}
