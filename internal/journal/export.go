package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const ordersSheet = "Заказы"

// ExportXLSX writes all orders submitted within the period to an Excel file
// under exportPath and returns the file path. One row per order; booking
// lines are folded into a single cell.
func (j *Journal) ExportXLSX(ctx context.Context, exportPath string, from, to time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	orders, err := j.ListOrders(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("error getting orders: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ordersSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Order ID", "Отправлен", "Статус", "Сумма", "Комнат", "Мест", "Состав",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ordersSheet, cell, header)
		_ = f.SetCellStyle(ordersSheet, cell, cell, headerStyle)
	}

	for i, order := range orders {
		row := i + 2
		var seats int
		var lines []string
		for _, booking := range order.Bookings {
			seats += booking.SeatsSelected
			line := fmt.Sprintf("комната %d: %d мест, заезд %s", booking.RoomID, booking.SeatsSelected, booking.CheckIn)
			if booking.CheckOut != "" {
				line += fmt.Sprintf(", выезд %s", booking.CheckOut)
			}
			lines = append(lines, line)
		}

		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("A%d", row), order.OrderID)
		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("B%d", row), order.SubmittedAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("C%d", row), order.Status)
		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("D%d", row), order.TotalAmount)
		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("E%d", row), len(order.Bookings))
		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("F%d", row), seats)
		_ = f.SetCellValue(ordersSheet, fmt.Sprintf("G%d", row), strings.Join(lines, "\n"))
	}

	_ = f.SetColWidth(ordersSheet, "A", "A", 20)
	_ = f.SetColWidth(ordersSheet, "B", "B", 18)
	_ = f.SetColWidth(ordersSheet, "C", "C", 12)
	_ = f.SetColWidth(ordersSheet, "D", "F", 10)
	_ = f.SetColWidth(ordersSheet, "G", "G", 50)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("orders_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(exportPath, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	j.logger.Info().Str("file_path", filePath).Int("orders", len(orders)).Msg("orders export created")
	return filePath, nil
}
