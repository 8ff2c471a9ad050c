package config

type WorkerKeyStruct struct {
	PersistPopupReactionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistPopupReactionsQueue: "persist_popup_reactions_queue",
}
