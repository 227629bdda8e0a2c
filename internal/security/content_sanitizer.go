// Package security はトークン暗号化、外部通信の保護、入力のサニタイズを提供する。
//
// TextSanitizerService はユーザーが入力したカレンダーイベントのテキストから
// HTMLを取り除き、Googleカレンダーに書き込む値を平文に揃える。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いた平文を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去した平文を返す。
// bluemondayはエスケープ済みの文字列を返すため、カレンダーに渡す前に実体参照を戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
