package assistant

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the instructional system prompts the relay sends ahead of
// student input. Defaults target Traditional Chinese beginner courses; a
// deployment can override any of them from a YAML file.
type Prompts struct {
	ErrorAnalysis string `yaml:"error_analysis"`
	CodeAnalysis  string `yaml:"code_analysis"`
	Chat          string `yaml:"chat"`
}

const defaultErrorAnalysisPrompt = `你是一位親切的程式教學助教，專門幫助初學者理解程式錯誤。

你的任務是：
1. 用繁體中文解釋錯誤訊息的含義
2. 指出程式碼中導致錯誤的具體位置
3. 提供修正建議
4. 如果適合，給予學習相關概念的提示

請使用簡潔、易懂的語言，避免過於專業的術語。
回應格式：
## 🔍 錯誤說明
（錯誤類型與原因說明）

## 📍 問題位置
（指出程式碼中的問題）

## ✅ 修正建議
（具體的修正方式）

## 💡 學習提示
（相關概念或常見陷阱）
`

const defaultCodeAnalysisPrompt = `你是一位程式教學助教，幫助學生理解程式碼的運作方式。

請用繁體中文：
1. 逐步解釋程式碼的功能
2. 說明關鍵語法與概念
3. 如果有改進空間，提供建議

使用簡潔、易懂的語言。`

const defaultChatPrompt = `你是一位友善的程式教學助教，正在協助學生學習 Python 程式設計。

你可以存取學生目前正在編輯的 Jupyter Notebook 內容。請根據這些上下文來回答問題。

回應規則：
1. 使用繁體中文回答
2. 說明要清楚、易懂
3. 適時提供程式碼範例
4. 鼓勵學生思考，而不是直接給答案
5. 如果學生問的問題與 Notebook 內容無關，也可以正常回答
`

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		ErrorAnalysis: defaultErrorAnalysisPrompt,
		CodeAnalysis:  defaultCodeAnalysisPrompt,
		Chat:          defaultChatPrompt,
	}
}

// LoadPrompts reads prompt overrides from a YAML file. Keys left empty in the
// file keep their built-in defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file %s: %w", path, err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	if override.ErrorAnalysis != "" {
		prompts.ErrorAnalysis = override.ErrorAnalysis
	}
	if override.CodeAnalysis != "" {
		prompts.CodeAnalysis = override.CodeAnalysis
	}
	if override.Chat != "" {
		prompts.Chat = override.Chat
	}
	return prompts, nil
}
