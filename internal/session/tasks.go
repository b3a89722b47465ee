package session

import (
	"encoding/json"
	"strconv"

	"companion/internal/protocol"
)

type taskCreateInput struct {
	Subject     *string `json:"subject"`
	Description string  `json:"description"`
	ActiveForm  string  `json:"activeForm"`
}

type taskUpdateInput struct {
	TaskID      string  `json:"taskId"`
	Status      *string `json:"status"`
	Subject     *string `json:"subject"`
	Description *string `json:"description"`
	ActiveForm  *string `json:"activeForm"`
}

// todoWriteInput keeps each todo loosely typed so one malformed entry does
// not discard the whole list.
type todoWriteInput struct {
	Todos []json.RawMessage `json:"todos"`
}

// todoField reads a todo attribute as text. Numbers are formatted; any other
// type reads as empty.
func todoField(todo map[string]any, key string) string {
	switch v := todo[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// applyTaskTools mirrors the agent's task list from TaskCreate, TaskUpdate
// and TodoWrite tool calls.
func (s *Session) applyTaskTools(blocks []protocol.ContentBlock) {
	for _, block := range blocks {
		if block.Type != protocol.BlockToolUse {
			continue
		}
		switch block.Name {
		case "TaskCreate":
			var in taskCreateInput
			_ = json.Unmarshal(block.Input, &in)
			subject := "Untitled"
			if in.Subject != nil {
				subject = *in.Subject
			}
			s.Tasks = append(s.Tasks, TaskItem{
				ID:          block.ID,
				Subject:     subject,
				Status:      TaskPending,
				Description: in.Description,
				ActiveForm:  in.ActiveForm,
			})
		case "TaskUpdate":
			var in taskUpdateInput
			if err := json.Unmarshal(block.Input, &in); err != nil {
				continue
			}
			task := s.findTask(in.TaskID)
			if task == nil {
				continue
			}
			if in.Status != nil {
				switch status := TaskStatus(*in.Status); status {
				case TaskPending, TaskInProgress, TaskCompleted, TaskDeleted:
					task.Status = status
				}
			}
			if in.Subject != nil {
				task.Subject = *in.Subject
			}
			if in.Description != nil {
				task.Description = *in.Description
			}
			if in.ActiveForm != nil {
				task.ActiveForm = *in.ActiveForm
			}
		case "TodoWrite":
			var in todoWriteInput
			if err := json.Unmarshal(block.Input, &in); err != nil || in.Todos == nil {
				continue
			}
			tasks := make([]TaskItem, 0, len(in.Todos))
			for _, raw := range in.Todos {
				var todo map[string]any
				if err := json.Unmarshal(raw, &todo); err != nil || todo == nil {
					continue
				}
				id := todoField(todo, "id")
				if id == "" {
					id = strconv.Itoa(len(tasks) + 1)
				}
				tasks = append(tasks, TaskItem{
					ID:         id,
					Subject:    todoField(todo, "content"),
					Status:     ParseTaskStatus(todoField(todo, "status")),
					ActiveForm: todoField(todo, "activeForm"),
				})
			}
			s.Tasks = tasks
		}
	}
}

// findTask matches a TaskUpdate id. Tasks are keyed by their creating
// tool_use id, while the agent refers to them by 1-based sequence number, so a
// numeric id falls back to position.
func (s *Session) findTask(id string) *TaskItem {
	if id == "" {
		return nil
	}
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	if n, err := strconv.Atoi(id); err == nil && n >= 1 && n <= len(s.Tasks) {
		return &s.Tasks[n-1]
	}
	return nil
}

type askUserQuestionInput struct {
	Questions []struct {
		Question    string `json:"question"`
		Header      string `json:"header"`
		MultiSelect bool   `json:"multiSelect"`
		Options     []struct {
			Label       string `json:"label"`
			Description string `json:"description"`
		} `json:"options"`
	} `json:"questions"`
}

// extractQuestion turns AskUserQuestion tool calls into pending questions.
func (s *Session) extractQuestion(blocks []protocol.ContentBlock) {
	for _, block := range blocks {
		if block.Type != protocol.BlockToolUse || block.Name != "AskUserQuestion" {
			continue
		}
		var in askUserQuestionInput
		if err := json.Unmarshal(block.Input, &in); err != nil || len(in.Questions) == 0 {
			continue
		}
		items := make([]QuestionItem, 0, len(in.Questions))
		for _, q := range in.Questions {
			options := make([]QuestionOption, 0, len(q.Options)+1)
			for _, opt := range q.Options {
				options = append(options, QuestionOption{Label: opt.Label, Description: opt.Description})
			}
			options = append(options, QuestionOption{Label: OtherOptionLabel, Description: "Type a custom response"})
			items = append(items, QuestionItem{
				Header:      q.Header,
				Question:    q.Question,
				Options:     options,
				MultiSelect: q.MultiSelect,
			})
		}
		question := PendingQuestion{ToolUseID: block.ID, Questions: items}
		if s.Question == nil {
			s.Question = &question
		} else {
			s.questionQueue = append(s.questionQueue, question)
		}
	}
}
