package task

import (
	"context"
)

func (d *Dispatcher) handleConfirmAction(ctx context.Context, req *Request) Result {
	if req.Conv != nil {
		if _, found := req.Conv.MostRecentAction(); found {
			return Result{Success: true, Code: CodeConfirmOK}
		}
	}
	return d.handleUnknown(ctx, req)
}

func (d *Dispatcher) handleModifyPrompt(ctx context.Context, req *Request) Result {
	return Result{Success: false, Code: CodeModifyPrompt}
}

func (d *Dispatcher) handleCancelOperation(ctx context.Context, req *Request) Result {
	if d.contexts != nil {
		d.contexts.ClearExpectedInput(ctx, req.UserID)
	}
	return Result{Success: false, Code: CodeCancelOperation}
}

func (d *Dispatcher) handleUnknown(_ context.Context, _ *Request) Result {
	return Result{
		Success: false,
		Code:    CodeUnknownHelp,
		Options: []Option{
			{Label: "查詢今天課表", Text: "查詢今天的課表"},
			{Label: "新增課程", Text: "明天下午3點小明有數學課"},
			{Label: "記錄上課內容", Text: "今天數學課學了分數"},
		},
	}
}
