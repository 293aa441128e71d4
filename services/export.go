package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"pdf-chat-saas/models"
)

// ExportService renders a file's conversation history for download.
type ExportService struct {
	messages MessageStore
}

func NewExportService(messages MessageStore) *ExportService {
	return &ExportService{messages: messages}
}

// exportPageSize bounds each store read while draining the history.
const exportPageSize = 200

// CollectHistory drains the full conversation for a file, newest-first.
func (s *ExportService) CollectHistory(ctx context.Context, fileID string) ([]models.Message, error) {
	var all []models.Message
	cursor := ""
	for {
		page, next, err := s.messages.List(ctx, fileID, cursor, exportPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// WriteExcel writes the conversation as a spreadsheet with one row per
// message.
func (s *ExportService) WriteExcel(ctx context.Context, fileID string, w io.Writer) error {
	history, err := s.CollectHistory(ctx, fileID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Conversation"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headers := []string{"Timestamp", "Role", "Text", "Message ID"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	// Rows oldest-first for readability; the store hands them newest-first.
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		row := len(history) - i + 1

		role := "assistant"
		if msg.IsUserMessage {
			role = "user"
		}

		values := []interface{}{
			msg.CreatedAt.Format(time.RFC3339),
			role,
			msg.Text,
			msg.ID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
