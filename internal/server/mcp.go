package server

import (
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// newMCPServer registers one tool per learner operation.
func newMCPServer(l Learner, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"wappa",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions),
	)

	sendTool := NewSendExampleTool(l)
	s.AddTool(sendTool.Definition(), sendTool.Handle)

	predictTool := NewPredictTool(l)
	s.AddTool(predictTool.Definition(), predictTool.Handle)

	saveTool := NewSaveModelTool(l)
	s.AddTool(saveTool.Definition(), saveTool.Handle)

	listTool := NewListCheckpointsTool(l)
	s.AddTool(listTool.Definition(), listTool.Handle)

	infoTool := NewSessionInfoTool(l)
	s.AddTool(infoTool.Definition(), infoTool.Handle)

	return s
}

const serverInstructions = `wappa hosts one Vowpal Wabbit session.

Train with vw_send_example (a label plus features), score with vw_predict,
and persist the model with vw_save_model. Features are written as
space-separated "label" or "label:value" tokens; spaces, colons and pipes
inside names are escaped automatically. In active learning mode every
answer carries an importance weight: a high importance means the example
is worth labelling.`
