// Package feedgen はフィードスケルトンの配信を提供する。
// アルゴリズムの登録、カーソルの符号化、リードレプリカからのページ取得を扱う。
package feedgen

import (
	"fmt"
	"sort"
	"strings"
)

// feedGeneratorCollection はフィードジェネレーターレコードのコレクションNSID。
const feedGeneratorCollection = "app.bsky.feed.generator"

const (
	// AlgorithmBlacksky はデフォルトのアルゴリズム。
	AlgorithmBlacksky = "blacksky"
	// AlgorithmBlackskyMedia はメディア付き投稿のアルゴリズム。
	AlgorithmBlackskyMedia = "blacksky-media"

	// DefaultAlgorithm は取り込みイベントでフィード未指定の場合に使うアルゴリズム。
	DefaultAlgorithm = AlgorithmBlacksky
)

// DefaultAlgorithms は標準で登録するアルゴリズムの短縮名。
var DefaultAlgorithms = []string{AlgorithmBlacksky, AlgorithmBlackskyMedia}

// Registry は静的に登録されたアルゴリズムの一覧。
// フィードURIは at://<publisher>/app.bsky.feed.generator/<name> の形式。
type Registry struct {
	publisherDID string
	names        map[string]struct{}
}

// NewRegistry はRegistryを生成する。namesが空の場合はDefaultAlgorithmsを登録する。
func NewRegistry(publisherDID string, names ...string) *Registry {
	if len(names) == 0 {
		names = DefaultAlgorithms
	}

	r := &Registry{
		publisherDID: publisherDID,
		names:        make(map[string]struct{}, len(names)),
	}
	for _, name := range names {
		r.names[name] = struct{}{}
	}
	return r
}

// Has は短縮名が登録済みかどうかを返す。
func (r *Registry) Has(name string) bool {
	_, ok := r.names[name]
	return ok
}

// URI は短縮名に対応するフィードURIを返す。
func (r *Registry) URI(name string) string {
	return fmt.Sprintf("at://%s/%s/%s", r.publisherDID, feedGeneratorCollection, name)
}

// Resolve はフィードURIから短縮名を解決する。
// 発行者DIDやコレクションが一致しない場合、未登録の場合はfalseを返す。
func (r *Registry) Resolve(feedURI string) (string, bool) {
	prefix := "at://" + r.publisherDID + "/" + feedGeneratorCollection + "/"
	name, ok := strings.CutPrefix(feedURI, prefix)
	if !ok || name == "" || !r.Has(name) {
		return "", false
	}
	return name, true
}

// Names は登録済みの短縮名をソートして返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
