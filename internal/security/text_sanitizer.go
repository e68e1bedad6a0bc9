// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はタスク本文などのプレーンテキスト入力を保存用に整える。
// 本文は入力どおりに保存し、HTMLとしてのエスケープは表示側で行う。
package security

import (
	"strings"
	"unicode"
)

// TextSanitizerService はプレーンテキストのサニタイズ機能のインターフェース。
type TextSanitizerService interface {
	// SanitizeText は制御文字を除去し、前後の空白を取り除いたテキストを返す。
	// それ以外の文字（<、>、&やエンティティ表記を含む）は変更しない。
	// 出力を再度渡しても結果は変わらない。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。状態を持たない。
type textSanitizer struct{}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{}
}

// SanitizeText は改行とタブ以外の制御文字を除去し、前後の空白を取り除く。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(stripControl(raw))
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
