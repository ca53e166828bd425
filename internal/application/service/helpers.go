package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/garyjia/docflow/internal/domain/approval"
)

func stepData(order int) string {
	return "step=" + strconv.Itoa(order)
}

func skippedData(adv approval.Advance) string {
	parts := make([]string, 0, len(adv.Skipped))
	for _, s := range adv.Skipped {
		parts = append(parts, strconv.Itoa(s))
	}
	return fmt.Sprintf("step=%d skipped=[%s]", adv.ApprovedStep, strings.Join(parts, ","))
}
