package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sequorhq/sequor/pkg/models"
	"github.com/sequorhq/sequor/pkg/protocol"
)

const defaultAIInputField = "last_message_body"

// executeAI runs one of the fixed AI tasks over an input field. Provider
// errors and unparseable completions degrade to a neutral default per task
// so the workflow keeps moving; AI is advisory, never load-bearing.
func (e *Engine) executeAI(ctx context.Context, execution *models.Execution, node *models.Node, contact *models.Contact) dispatchResult {
	var config models.AIConfig
	if err := node.DecodeConfig(&config); err != nil {
		return failed(err.Error())
	}

	inputField := config.InputField
	if inputField == "" {
		inputField = defaultAIInputField
	}

	input, _ := resolveField(inputField, execution, contact)
	inputText := asString(input)

	if e.completions == nil {
		return skipped("no completion provider configured",
			map[string]any{aiFactKey(config.Task): neutralAIResult(config.Task, inputText)})
	}

	request, err := buildCompletionRequest(config, inputText)
	if err != nil {
		return failed(fmt.Sprintf("ai node %s: %v", node.ID, err))
	}

	completion, err := e.completions.Complete(ctx, request)
	if err != nil {
		e.logger.WarnContext(ctx, "Completion provider failed, using neutral result",
			"execution_id", execution.ID, "node_id", node.ID,
			"task", config.Task, "error", err)

		return succeededWith(map[string]any{
			aiFactKey(config.Task): neutralAIResult(config.Task, inputText),
		})
	}

	return succeededWith(map[string]any{
		aiFactKey(config.Task): parseCompletion(config, completion, inputText),
	})
}

func buildCompletionRequest(config models.AIConfig, input string) (protocol.CompletionRequest, error) {
	var system, prompt string

	switch config.Task {
	case models.AITaskSentiment:
		system = "Classify the sentiment of the user's message. Answer with exactly one word: positive, negative or neutral."
		prompt = input
	case models.AITaskCategorize:
		if len(config.Categories) == 0 {
			return protocol.CompletionRequest{}, fmt.Errorf("categorize task has no categories configured")
		}

		system = fmt.Sprintf(
			"Assign the user's message to exactly one of these categories: %s. Answer with the category name only.",
			strings.Join(config.Categories, ", "))
		prompt = input
	case models.AITaskExtractInfo:
		if len(config.ExtractFields) == 0 {
			return protocol.CompletionRequest{}, fmt.Errorf("extract_info task has no fields configured")
		}

		system = fmt.Sprintf(
			"Extract the following fields from the user's message and answer with a JSON object containing only them: %s. Use null for fields that are absent.",
			strings.Join(config.ExtractFields, ", "))
		prompt = input
	case models.AITaskGenerateResponse:
		system = "Write a short, friendly reply to the user's message."
		if config.Instructions != "" {
			system += " " + config.Instructions
		}

		prompt = input
	case models.AITaskTranslate:
		if config.TargetLanguage == "" {
			return protocol.CompletionRequest{}, fmt.Errorf("translate task has no target language configured")
		}

		system = fmt.Sprintf("Translate the user's message to %s. Answer with the translation only.", config.TargetLanguage)
		prompt = input
	default:
		return protocol.CompletionRequest{}, fmt.Errorf("unknown ai task %q", config.Task)
	}

	return protocol.CompletionRequest{
		Model:        config.Model,
		SystemPrompt: system,
		Prompt:       prompt,
		Temperature:  config.Temperature,
		MaxTokens:    config.MaxTokens,
	}, nil
}

// parseCompletion normalizes the raw completion into the fact value shape of
// the task, falling back to the neutral default when it does not parse.
func parseCompletion(config models.AIConfig, completion, input string) any {
	text := strings.TrimSpace(completion)

	switch config.Task {
	case models.AITaskSentiment:
		sentiment := strings.ToLower(text)
		if sentiment != "positive" && sentiment != "negative" && sentiment != "neutral" {
			return "neutral"
		}

		return sentiment
	case models.AITaskCategorize:
		for _, category := range config.Categories {
			if strings.EqualFold(text, category) {
				return category
			}
		}

		return neutralAIResult(config.Task, input)
	case models.AITaskExtractInfo:
		var extracted map[string]any
		if err := json.Unmarshal([]byte(text), &extracted); err != nil {
			return map[string]any{}
		}

		return extracted
	default:
		return text
	}
}

func neutralAIResult(task models.AITask, input string) any {
	switch task {
	case models.AITaskSentiment:
		return "neutral"
	case models.AITaskCategorize:
		return "uncategorized"
	case models.AITaskExtractInfo:
		return map[string]any{}
	case models.AITaskTranslate:
		// Untranslated beats silent data loss.
		return input
	default:
		return ""
	}
}

func aiFactKey(task models.AITask) string {
	switch task {
	case models.AITaskSentiment:
		return "ai_sentiment"
	case models.AITaskCategorize:
		return "ai_category"
	case models.AITaskExtractInfo:
		return "ai_extracted"
	case models.AITaskTranslate:
		return "ai_translation"
	default:
		return "ai_response"
	}
}
