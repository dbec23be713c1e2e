package step

import "prepline/internal/domain"

// RegisterBuiltins populates the registry with the step catalog shipped in
// this binary. Called once at process start; a conflict here means two
// builtins collided and is a programming error worth failing startup over.
func RegisterBuiltins(reg *Registry) error {
	factories := []Factory{
		{Kind: "impute_missing", Modality: domain.ModalityTabular, Version: 1,
			Summary: "fill missing values using a batch-local statistic or constant", New: newImputeMissing},
		{Kind: "scale_numeric", Modality: domain.ModalityTabular, Version: 1,
			Summary: "rescale numeric columns (standard or minmax)", New: newScaleNumeric},
		{Kind: "encode_labels", Modality: domain.ModalityTabular, Version: 1,
			Summary: "map categorical values to deterministic integer codes", New: newEncodeLabels},
		{Kind: "select_columns", Modality: domain.ModalityTabular, Version: 1,
			Summary: "project the dataset onto a column subset", New: newSelectColumns},
		{Kind: "drop_missing", Modality: domain.ModalityTabular, Version: 1,
			Summary: "drop records with missing values", New: newDropMissing},
		{Kind: "dedupe_rows", Modality: domain.ModalityTabular, Version: 1,
			Summary: "remove duplicate records, keeping the first occurrence", New: newDedupeRows},
		{Kind: "normalize_text", Modality: domain.ModalityText, Version: 1,
			Summary: "lowercase, trim, and collapse whitespace", New: newNormalizeText},
		{Kind: "filter_length", Modality: domain.ModalityText, Version: 1,
			Summary: "drop records outside character-length bounds", New: newFilterLength},
		{Kind: "shuffle_augment", Modality: domain.ModalityText, Version: 1,
			Summary: "augment records with seeded word-order shuffling", New: newShuffleAugment},
	}
	for _, f := range factories {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}
