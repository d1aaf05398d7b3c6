package kernel

// DefaultOrder is the tick's phase-1 composition order, encoding the
// causal dependencies spec.md §4.2 requires: perception before memory
// writes that reference PackZ, world-model context before prediction
// before error before uncertainty, concept-graph mining before node
// management before edge scoring before rule extraction, planning after
// world-model and concept graph, dialog after planning, execution only
// after safety filtering, persistence after commit, observability last
// among pure artifacts, adaptation before runtime activation, runtime
// gating before scheduling, initiative after scheduling, orchestration
// after gates, and driver protocol building last. Grounded in
// original_source/n3_runtime/loop/io_tick.py and adapters/registry.py.
func DefaultOrder() []string {
	return []string{
		// B1 perception
		"b1f1_collector",
		"b1f2_normalizer",
		"b1f3_script_tagger",
		"b1f4_tokenizer",
		"b1f5_sentence_splitter",
		"b1f6_span_extractor",
		"b1f7_signal_extractor",
		"b1f8_novelty_scorer",
		"b1f9_typing_tracer",
		"b1f10_packz",
		// B2 world model
		"b2f1_context_builder",
		"b2f2_predictor",
		"b2f3_error_scorer",
		"b2f4_uncertainty_scorer",
		// B3 memory
		"b3f1_wal_writer",
		"b3f2_indexer",
		"b3f3_retriever",
		"b3f4_context_cache",
		// B4 concept graph
		"b4f1_pattern_miner",
		"b4f2_node_manager",
		"b4f3_edge_scorer",
		"b4f4_rule_extractor",
		// B5 planning
		"b5f1_intent_router",
		"b5f2_slot_collector",
		"b5f3_plan_builder",
		// B6 dialog
		"b6f1_turn_realizer",
		"b6f2_surface_nlg",
		"b6f3_safety_filter",
		// B7 execution
		"b7f1_skill_dispatcher",
		"b7f2_result_normalizer",
		"b7f3_result_presenter",
		// B8 persistence
		"b8f1_memory_commit",
		"b8f2_wal_apply_planner",
		"b8f3_apply_optimizer",
		// B9 observability
		"b9f1_telemetry_aggregator",
		"b9f2_trace_builder",
		"b9f3_slo_evaluator",
		// B10 adaptation
		"b10f1_policy_delta_planner",
		"b10f2_policy_apply_planner",
		"b10f3_policy_apply_stager",
		// B11 runtime
		"b11f1_config_activator",
		"b11f2_runtime_gatekeeper",
		"b11f3_scheduler",
		"b11f4_initiative_scheduler",
		// B12 orchestration
		"b12f1_orchestrator_tick",
		"b12f2_action_enveloper",
		"b12f3_driver_job_builder",
		// B13 drivers
		"b13f1_protocol_builder",
	}
}

// ShortOrder is the tick's phase-2 order, run after driver replies have
// been attached to the state: reply normalization (spec.md §4.9 folds
// executor result shaping into this step, so the raw-results handoff
// from b13f2 to b7f2/b7f3 must finish before telemetry reads
// executor.results.aggregate), telemetry aggregation, SLO evaluation,
// and retry planning.
func ShortOrder() []string {
	return []string{
		"b13f2_reply_normalizer",
		"b7f2_result_normalizer",
		"b7f3_result_presenter",
		"b9f1_telemetry_aggregator",
		"b9f3_slo_evaluator",
		"b13f3_driver_retry_planner",
	}
}
