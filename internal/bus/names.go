package bus

// Well-known actor names. Components resolve each other by these names only;
// no actor holds a reference to another actor's struct.
const (
	// ActorMainWindow is the presentation endpoint: plots, parameter
	// read-backs and run notifications land here.
	ActorMainWindow = "main_window"

	// ActorCalculations is the optimization engine.
	ActorCalculations = "calculations"

	// ActorOperations is the calculation data operations actor driving the
	// reaction store.
	ActorOperations = "calculations_data_operations"

	// ActorStore is the hierarchical calculation data store.
	ActorStore = "calculations_data"

	// ActorFileData owns loaded experiment files.
	ActorFileData = "file_data"
)
