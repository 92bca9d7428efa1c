package commands

func (c *Commands) enableSimulationOnObjects(params string) (string, error) {
	active := c.backend.EnableSimulation(splitNames(params))
	c.log.Debug("Simulating %v", active)
	return "", nil
}

func (c *Commands) startSimulation(string) (string, error) {
	c.backend.StartSimulation()
	return "", nil
}

func (c *Commands) cancelSimulation(string) (string, error) {
	c.backend.CancelSimulation()
	return "", nil
}
