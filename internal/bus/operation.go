package bus

// Operation is a closed set of message verbs routed between actors.
// Using a typed constant set instead of free-form strings so that dispatch
// switches can be checked for coverage.
type Operation string

const (
	OpAddReaction           Operation = "add_reaction"
	OpRemoveReaction        Operation = "remove_reaction"
	OpHighlightReaction     Operation = "highlight_reaction"
	OpUpdateValue           Operation = "update_value"
	OpGetValue              Operation = "get_value"
	OpSetValue              Operation = "set_value"
	OpRemoveValue           Operation = "remove_value"
	OpDeconvolution         Operation = "deconvolution"
	OpModelBasedCalculation Operation = "model_based_calculation"
	OpStopCalculation       Operation = "stop_calculation"
	OpCalculationFinished   Operation = "calculation_finished"
	OpGetFileName           Operation = "get_file_name"
	OpPlotDF                Operation = "plot_df"
	OpPlotMSELine           Operation = "plot_mse_line"
	OpPlotReaction          Operation = "plot_reaction"
	OpReactionParamsToGUI   Operation = "reaction_params_to_gui"
	OpUpdateReactionsParams Operation = "update_reactions_params"
	OpImportReactions       Operation = "import_reactions"
	OpExportReactions       Operation = "export_reactions"
	OpGetDFData             Operation = "get_df_data"
	OpCheckDifferential     Operation = "check_differential"
	OpLoadFile              Operation = "load_file"
	OpResetFileData         Operation = "reset_file_data"
	OpNewBestResult         Operation = "new_best_result"
	OpFileChanged           Operation = "file_changed"
)

var knownOperations = map[Operation]bool{
	OpAddReaction:           true,
	OpRemoveReaction:        true,
	OpHighlightReaction:     true,
	OpUpdateValue:           true,
	OpGetValue:              true,
	OpSetValue:              true,
	OpRemoveValue:           true,
	OpDeconvolution:         true,
	OpModelBasedCalculation: true,
	OpStopCalculation:       true,
	OpCalculationFinished:   true,
	OpGetFileName:           true,
	OpPlotDF:                true,
	OpPlotMSELine:           true,
	OpPlotReaction:          true,
	OpReactionParamsToGUI:   true,
	OpUpdateReactionsParams: true,
	OpImportReactions:       true,
	OpExportReactions:       true,
	OpGetDFData:             true,
	OpCheckDifferential:     true,
	OpLoadFile:              true,
	OpResetFileData:         true,
	OpNewBestResult:         true,
	OpFileChanged:           true,
}

// Valid reports whether op belongs to the closed operation set.
func (op Operation) Valid() bool {
	return knownOperations[op]
}

// String returns the wire form of the operation.
func (op Operation) String() string {
	return string(op)
}
