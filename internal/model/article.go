package model

import "time"

// ArticleStatus は記事の公開状態。
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
)

// Article はnewsテーブルの記事を表す。
// Views/LikeCount/BookmarkCountは非正規化カウンタで、
// 各メンバーシップ行・閲覧イベント行の件数と常に一致する。
type Article struct {
	ID            int64
	Title         string
	Content       string
	Author        string
	Status        ArticleStatus
	CreatedAt     time.Time
	Views         int64
	LikeCount     int64
	BookmarkCount int64
}

// ArticleSummary はランキングや一覧で返す記事の要約。
type ArticleSummary struct {
	ID            int64
	Title         string
	Author        string
	Views         int64
	LikeCount     int64
	BookmarkCount int64
	CreatedAt     time.Time
}

// ArticleStats は記事のエンゲージメントカウンタ。
type ArticleStats struct {
	Views     int64
	Likes     int64
	Bookmarks int64
}

// ArticleInfo は記事本文、カウンタ、エンゲージメント率と
// 閲覧ユーザーごとのいいね・ブックマーク状態をまとめたもの。
type ArticleInfo struct {
	Article
	EngagementRate float64
	IsLiked        bool
	IsBookmarked   bool
}

// MembershipEntry はいいね・ブックマークした記事の一覧要素。
type MembershipEntry struct {
	ArticleID int64
	Title     string
	Author    string
	LikeCount int64
	At        time.Time
}

// Liker は記事にいいねしたユーザー。
type Liker struct {
	Username string
	LikedAt  time.Time
}

// UserEngagementSummary はユーザーのいいね数とブックマーク数。
type UserEngagementSummary struct {
	Liked      int64
	Bookmarked int64
}

// AuthorStats は発行者ごとの公開記事の集計。
type AuthorStats struct {
	TotalArticles  int64
	TotalViews     int64
	TotalLikes     int64
	TotalBookmarks int64
	AvgViews       float64
	AvgLikes       float64
}

// Ranking は記事ランキングの種類。並び順のタイブレークはRankingごとに固定。
type Ranking string

const (
	// RankingTrending は期間内に作成された記事を閲覧数順に並べる。
	RankingTrending Ranking = "trending"
	// RankingPopular は全期間の記事を閲覧数順に並べる。
	RankingPopular Ranking = "popular"
	// RankingMostLiked は全期間の記事をいいね数順に並べる。
	RankingMostLiked Ranking = "most_liked"
)
