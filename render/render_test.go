package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/render"
	"github.com/hrygo/coursesense/task"
)

func newRenderer() *render.Renderer {
	return render.New(config.MustNew())
}

func TestRenderSubstitutesTemplateFields(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentAddCourse, task.Result{
		Success: true,
		Code:    task.CodeAddCourseOK,
		Data: map[string]string{
			"studentName":  "小明",
			"courseName":   "數學課",
			"courseDate":   "2025-08-11",
			"scheduleTime": "14:00",
		},
	})

	require.Len(t, messages, 1)
	assert.Equal(t, "text", messages[0].Type)
	assert.Contains(t, messages[0].Text, "小明")
	assert.Contains(t, messages[0].Text, "數學課")
	assert.Contains(t, messages[0].Text, "2025-08-11 14:00")
	assert.NotContains(t, messages[0].Text, "{")
}

func TestRenderMessageOverridesTemplate(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentUnknown, task.Result{
		Code:    task.CodeAddCourseOK,
		Message: "自訂訊息",
	})

	require.Len(t, messages, 1)
	assert.Equal(t, "自訂訊息", messages[0].Text)
}

func TestRenderUnknownCodeFallsBack(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentUnknown, task.Result{Code: "NO_SUCH_CODE"})

	require.Len(t, messages, 1)
	assert.NotEmpty(t, messages[0].Text)
	assert.NotContains(t, messages[0].Text, "{")
}

func TestRenderEmptyQueryAppendsGuide(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentQuerySchedule, task.Result{
		Success: true,
		Code:    task.CodeQueryOKEmpty,
		Data:    map[string]string{"scope": "小明", "dateDescription": "今天"},
	})

	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Text, "小明今天")
	assert.Contains(t, messages[1].Text, "安排課程")
}

func TestRenderSuccessCarriesConfirmationButtons(t *testing.T) {
	r := newRenderer()

	// Completed mutations offer confirm and cancel follow-ups.
	for _, intent := range []nlu.Intent{
		nlu.IntentAddCourse,
		nlu.IntentCreateRecurringCourse,
		nlu.IntentSetReminder,
		nlu.IntentRecordContent,
		nlu.IntentAddCourseContent,
	} {
		messages := r.Render(intent, task.Result{
			Success: true,
			Code:    task.CodeAddCourseOK,
			Data:    map[string]string{"studentName": "小明", "courseName": "數學課"},
		})
		require.Len(t, messages, 1)
		quickReply := messages[0].QuickReply
		require.NotNil(t, quickReply, "intent %s", intent)
		require.Len(t, quickReply.Items, 2)
		assert.Equal(t, "確認", quickReply.Items[0].Action.Label)
		assert.Equal(t, "action=confirm_course", quickReply.Items[0].Action.Data)
		assert.Equal(t, "取消操作", quickReply.Items[1].Action.Label)
		assert.Equal(t, "action=cancel_operation", quickReply.Items[1].Action.Data)
	}
}

func TestRenderCancelSuccessCarriesDeleteConfirmation(t *testing.T) {
	r := newRenderer()

	for _, intent := range []nlu.Intent{nlu.IntentCancelCourse, nlu.IntentStopRecurringCourse} {
		messages := r.Render(intent, task.Result{
			Success: true,
			Code:    task.CodeCancelOK,
			Data:    map[string]string{"studentName": "小明", "courseName": "數學課"},
		})
		require.Len(t, messages, 1)
		quickReply := messages[0].QuickReply
		require.NotNil(t, quickReply, "intent %s", intent)
		assert.Equal(t, "確認刪除", quickReply.Items[0].Action.Label)
		assert.Equal(t, "取消操作", quickReply.Items[1].Action.Label)
	}
}

func TestRenderSuccessWithoutMappingStaysBare(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentQuerySchedule, task.Result{
		Success: true,
		Code:    task.CodeQueryOK,
		Data:    map[string]string{"scope": "小明", "dateDescription": "今天", "courses": "・14:00 數學課"},
	})

	require.Len(t, messages, 1)
	assert.Nil(t, messages[0].QuickReply)
}

func TestRenderOptionsBecomeQuickReplies(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentCancelCourse, task.Result{
		Code: task.CodeRecurringCancelOptions,
		Data: map[string]string{"courseName": "英文課"},
		Options: []task.Option{
			{Label: "只取消今天", PostbackData: "action=cancel_recurring&courseId=c1&scope=today"},
			{Label: "查詢課表", Text: "查詢今天的課表"},
			{Label: "說明"},
		},
	})

	require.Len(t, messages, 1)
	quickReply := messages[0].QuickReply
	require.NotNil(t, quickReply)
	require.Len(t, quickReply.Items, 4) // options plus the cancel escape

	assert.Equal(t, "postback", quickReply.Items[0].Action.Type)
	assert.Contains(t, quickReply.Items[0].Action.Data, "scope=today")
	assert.Equal(t, "message", quickReply.Items[1].Action.Type)
	assert.Equal(t, "查詢今天的課表", quickReply.Items[1].Action.Text)
	assert.Equal(t, "說明", quickReply.Items[2].Action.Text)
	assert.Equal(t, "取消", quickReply.Items[3].Action.Text)
}

func TestRenderMissingFieldsOffersCancel(t *testing.T) {
	messages := newRenderer().Render(nlu.IntentAddCourse, task.Result{
		Code:          task.CodeMissingFields,
		Data:          map[string]string{"missingFields": "學生姓名"},
		MissingFields: []string{"studentName"},
	})

	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Text, "學生姓名")
	require.NotNil(t, messages[0].QuickReply)
	assert.Equal(t, "取消", messages[0].QuickReply.Items[0].Action.Label)
}

func TestRenderDeterministic(t *testing.T) {
	r := newRenderer()
	result := task.Result{
		Success: true,
		Code:    task.CodeQueryOK,
		Data: map[string]string{
			"scope":           "小明",
			"dateDescription": "今天",
			"courses":         "・14:00 數學課",
		},
	}
	first := r.Render(nlu.IntentQuerySchedule, result)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Render(nlu.IntentQuerySchedule, result))
	}
}
