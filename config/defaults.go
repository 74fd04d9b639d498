package config

// defaultIntentRules returns the compiled-in rule table. The table is data:
// it is applied by the NLU rule matcher with the score formula
// 10*keywords + 15*patterns + (20 - priority).
func defaultIntentRules() []IntentRule {
	return []IntentRule{
		{
			Intent:   "set_reminder",
			Keywords: []string{"提醒", "提醒我", "通知我"},
			Priority: 1,
		},
		{
			Intent:     "stop_recurring_course",
			Keywords:   []string{"停課", "停止"},
			Patterns:   []string{`(取消|停止|停).*(每週|每周|每天|每月|固定)`},
			Priority:   2,
			Exclusions: []string{"提醒"},
		},
		{
			Intent:     "cancel_course",
			Keywords:   []string{"取消", "刪除", "刪掉", "不上了"},
			Priority:   2,
			Exclusions: []string{"提醒", "取消操作"},
		},
		{
			Intent:   "modify_course",
			Keywords: []string{"改到", "改成", "修改", "更改", "換到", "換成", "調整"},
			Patterns: []string{`改[到成]`},
			Priority: 3,
		},
		{
			Intent:         "create_recurring_course",
			Keywords:       []string{"每週", "每周", "每天", "每日", "每月", "每星期", "固定"},
			RequiredGroups: [][]string{{"課", "班"}},
			Priority:       4,
			Exclusions:     []string{"取消", "刪除", "停"},
		},
		{
			Intent:         "add_course",
			Keywords:       []string{"要上", "安排", "新增", "加課", "補課"},
			Patterns:       []string{`[要去]上.+課`},
			RequiredGroups: [][]string{{"點", ":", "上午", "中午", "下午", "晚上", "每週", "每周", "每天", "每月", "星期", "週", "周"}},
			Priority:       5,
			Exclusions:     []string{"取消", "刪除", "什麼課", "有課嗎"},
		},
		{
			Intent:   "query_course_content",
			Keywords: []string{"上了什麼", "學了什麼", "教了什麼", "上課內容", "課程內容"},
			Priority: 5,
		},
		{
			Intent:   "record_content",
			Keywords: []string{"記錄", "紀錄", "筆記"},
			Patterns: []string{`(今天|剛才|剛剛).*(學|教)了`},
			Priority: 6,
		},
		{
			Intent:   "add_course_content",
			Keywords: []string{"補充內容", "補記", "加內容"},
			Priority: 6,
		},
		{
			Intent:   "query_schedule",
			Keywords: []string{"課表", "查詢", "看一下", "有什麼課", "課程安排", "幾點", "有課嗎"},
			Patterns: []string{`(今天|明天|後天|這週|本週|下週).*(課|安排)`},
			Priority: 7,
		},
		{
			Intent:          "confirm_action",
			Keywords:        []string{"確認", "確定", "好的", "好", "對", "沒錯", "是的", "OK", "ok"},
			Priority:        10,
			RequiresContext: true,
		},
		{
			Intent:          "modify_action",
			Keywords:        []string{"改一下", "修改一下", "不對", "錯了"},
			Priority:        10,
			RequiresContext: true,
		},
		{
			Intent:          "cancel_action",
			Keywords:        []string{"取消操作", "不要了", "算了"},
			Priority:        9,
			RequiresContext: true,
		},
		{
			Intent:          "restart_input",
			Keywords:        []string{"重新輸入", "重來", "重新開始"},
			Priority:        9,
			RequiresContext: true,
		},
		{
			Intent:          "correction_intent",
			Keywords:        []string{"我是說", "應該是", "更正"},
			Priority:        10,
			RequiresContext: true,
		},
	}
}

// defaultTemplates returns the compiled-in user-facing message templates.
// Placeholders use {variable} substitution.
func defaultTemplates() map[string]string {
	return map[string]string{
		"ADD_COURSE_OK":    "✅ 已為{studentName}新增{courseName}\n📅 {courseDate} {scheduleTime}",
		"MODIFY_OK":        "✅ 已更新{studentName}的{courseName}\n{changes}",
		"CANCEL_OK":        "✅ 已取消{studentName}的{courseName}",
		"QUERY_OK":         "📅 {scope}{dateDescription}的課表\n{courses}",
		"QUERY_OK_EMPTY":   "📅 {scope}{dateDescription}的課表\n沒有安排課程",
		"QUERY_GUIDE":      "💡 您可以這樣安排課程：\n「小明明天下午2點要上數學課」\n「每週三晚上7點英文課」",
		"MISSING_FIELDS":   "還需要一些資訊才能完成：{missingFields}\n請補充後再試一次",
		"NOT_FOUND":        "找不到符合的課程，請確認學生姓名與課程名稱",
		"TIME_CONFLICT":    "⚠️ 該時段已有課程安排：{conflict}\n要換個時間嗎？",
		"INVALID_TIME":     "看不懂這個時間，請用例如「下午2點」或「14:00」的格式",
		"INVALID_PAST_TIME": "這個時間已經過去了，請提供未來的日期時間",
		"PAST_REMINDER_TIME": "提醒時間已經過去了，請設定更早的提前量",
		"RECURRING_CANCEL_OPTIONS": "「{courseName}」是固定課程，要取消哪些？\n1️⃣ 只取消今天\n2️⃣ 從明天起取消\n3️⃣ 取消整個系列",
		"FEATURE_UNDER_DEVELOPMENT": "這個功能還在開發中，請先用其他方式安排",
		"NOT_IMPLEMENTED_MONTHLY":   "每月固定課程還在開發中，請先逐次新增",
		"REMINDER_OK":         "⏰ 已設定{courseName}提醒，提前{reminderMinutes}分鐘通知",
		"RECORD_OK":           "📝 已記錄{studentName}的{courseName}內容",
		"QUERY_CONTENT_OK":    "📖 {courseName}的上課內容\n{contents}",
		"QUERY_CONTENT_EMPTY": "還沒有{courseName}的上課記錄",
		"UNKNOWN_HELP": "我可以幫您管理課程 📚\n試試這樣說：\n・小明明天下午2點要上數學課\n・查詢小明今天的課表\n・取消小明的數學課\n・提醒我小明的物理課",
		"TEMP_UNAVAILABLE": "系統暫時忙碌中，請稍後再試",
		"FIREBASE_ERROR":   "資料存取發生問題，請稍後再試",
		"WELCOME":          "歡迎使用課程助手 🎒\n直接告訴我課程安排，例如：\n「小明明天下午2點要上數學課」",
		"CONFIRM_COURSE":   "✅ 已確認課程安排",
		"CANCEL_OPERATION": "已取消本次操作",
		"MODIFY_PROMPT":    "請告訴我要修改的內容",
	}
}
