// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer は管理画面で入力された商品説明のHTMLをサニタイズし、
// 商品ページを閲覧する全ての訪問者をXSSから保護する。
// bluemondayの許可リストポリシーで、書式用の安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxDescriptionLength はサニタイズ後の説明文の最大バイト数。
const maxDescriptionLength = 10000

// DescriptionSanitizer は商品説明をサニタイズする。
// bluemondayのPolicyは構築後の並行利用が安全なため、共有して使う。
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, h3, h4
//   - aタグ: httpsの絶対URLのみ。target="_blank"とrel="noopener noreferrer"を付与
//   - img, script, iframe, styleおよびon*属性は除去
func NewDescriptionSanitizer() *DescriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "h3", "h4",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &DescriptionSanitizer{policy: p}
}

// Sanitize は説明文をサニタイズする。前後の空白を除き、上限を超えた分は切り詰める。
func (s *DescriptionSanitizer) Sanitize(rawHTML string) string {
	out := strings.TrimSpace(s.policy.Sanitize(rawHTML))
	if len(out) > maxDescriptionLength {
		// 切り詰めで壊れたタグが残らないよう再度通す
		out = strings.TrimSpace(s.policy.Sanitize(truncateUTF8(out, maxDescriptionLength)))
	}
	return out
}

// truncateUTF8 はUTF-8の文字境界を保ってnバイト以下に切り詰める。
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
