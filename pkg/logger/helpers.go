package logger

// LogUpload logs the outcome of a single object upload
func LogUpload(appID, key string, success bool, err error) {
	fields := map[string]interface{}{
		"app_id": appID,
		"key":    key,
	}
	if success {
		GetLogger().DebugWithFields("object uploaded", fields)
		return
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	GetLogger().ErrorWithFields("object upload failed", fields)
}

// LogFlowStatus logs a flow checkpoint transition
func LogFlowStatus(appID, flowID, status string) {
	GetLogger().InfoWithFields("flow status", map[string]interface{}{
		"app_id":  appID,
		"flow_id": flowID,
		"status":  status,
	})
}

// LogRetry logs a retry attempt with its cause
func LogRetry(operation string, attempt int, err error) {
	GetLogger().WarnWithFields("retrying operation", map[string]interface{}{
		"operation": operation,
		"attempt":   attempt,
		"error":     err.Error(),
	})
}
