package simstate

// The following methods apply the state-side effects of the simple
// command MIDs (parameter set select, job select, tool enable/disable,
// and similar one-shot operations the dispatcher hands off after
// confirming the command is allowed).

// SelectPset sets the active parameter set number.
func (s *State) SelectPset(value string) {
	s.mutateDomain("pset", func(pset map[string]any) {
		pset["selected"] = value
	})
}

// SelectJob sets the active job number.
func (s *State) SelectJob(value string) {
	s.mutateDomain("job", func(job map[string]any) {
		job["selected"] = value
	})
}

// SetPsetBatchSize sets the parameter set's batch size.
func (s *State) SetPsetBatchSize(n int) {
	s.mutateDomain("pset", func(pset map[string]any) {
		pset["batch_size"] = n
	})
}

// ResetPsetBatchCounter zeroes the parameter set's batch counter.
func (s *State) ResetPsetBatchCounter() {
	s.mutateDomain("pset", func(pset map[string]any) {
		pset["batch_counter"] = 0
	})
}

// SetToolEnabled enables or disables the tool.
func (s *State) SetToolEnabled(enabled bool) {
	s.mutateDomain("tool", func(tool map[string]any) {
		tool["enabled"] = enabled
	})
}

// SelectTool sets the primary tool number.
func (s *State) SelectTool(value string) {
	s.mutateDomain("tool", func(tool map[string]any) {
		tool["primary_tool"] = value
	})
}

// ClearLatestIdentifier clears the most recent identifier part result.
func (s *State) ClearLatestIdentifier() {
	s.mutateDomain("identifiers", func(ids map[string]any) {
		ids["latest"] = nil
	})
}

// ClearAllIdentifiers clears the latest and the full identifier history.
func (s *State) ClearAllIdentifiers() {
	s.mutateDomain("identifiers", func(ids map[string]any) {
		ids["latest"] = nil
		ids["all"] = []any{}
	})
}

// SetUserDataLastDownload records the raw payload of the most recent job
// line control user data download.
func (s *State) SetUserDataLastDownload(data string) {
	s.mutateDomain("user_data", func(ud map[string]any) {
		records, _ := ud["records"].(map[string]any)
		if records == nil {
			records = map[string]any{}
		}
		records["last_download"] = data
		ud["records"] = records
	})
}

// SelectMode sets the active mode number.
func (s *State) SelectMode(value string) {
	s.mutateDomain("mode", func(mode map[string]any) {
		mode["selected"] = value
	})
}
